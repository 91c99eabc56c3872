// Package pixelsift provides content-based image search over large
// collections.
//
// Images are embedded by a pluggable feature extractor and served from an
// approximate-nearest-neighbor index with angular distance. Payloads and
// metadata live in a bucketed file store that shares one dense id space
// with the index.
//
// # Quick Start
//
//	ext := myextractor.New()  // implements extractor.Extractor
//	ps, _ := pixelsift.New("./data", ext)
//	defer ps.Close()
//
//	indexed, _ := ps.Index(ctx, "/photos/vacation")
//
//	results, _ := ps.Search(ctx, "query.jpg", 4)
//	for _, r := range results {
//	    fmt.Println(r.ID, r.Distance, r.Metadata["original_file_name"])
//	}
//
// # Indexing Pipeline
//
// Index scans the source, imports reachable images and extracts their
// embeddings on a bounded worker pool, then appends the embeddings
// sequentially in ascending id order. Unreachable or non-image sources
// are logged and skipped; the dense 0..N-1 id range shared by index and
// store survives any mix of skips and removals.
package pixelsift
