package pixelsift

import (
	"context"
	"os"
	"sync"

	"github.com/schollz/progressbar/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pixelsift/pixelsift/extractor"
	"github.com/pixelsift/pixelsift/fetch"
	"github.com/pixelsift/pixelsift/imagestore"
	"github.com/pixelsift/pixelsift/index"
)

// Result is one search hit, optionally carrying the stored metadata of
// the matched image.
type Result struct {
	ID       int
	Distance float32
	Metadata map[string]any
}

// ImageSearch ties the vector index, the image store and the extractor
// together under one dense id space.
type ImageSearch struct {
	mu        sync.Mutex
	dataDir   string
	cfg       Config
	extractor extractor.Extractor
	store     *imagestore.Store
	index     *index.Index
	workers   int
	progress  bool
	logger    *Logger
}

// New opens or creates an image search collection at dataDir.
//
// A persisted collection records the extraction profile it was indexed
// with; reopening with a different extractor fails with ErrConfigMismatch.
func New(dataDir string, ext extractor.Extractor, optFns ...func(o *Options)) (*ImageSearch, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = NewLogger(nil)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.NewClient()
	}

	importImages := opts.ImportImages

	persisted, err := loadConfig(dataDir)
	if err != nil {
		return nil, err
	}
	if persisted != nil {
		if persisted.Characteristic != ext.Characteristic().String() {
			return nil, characteristicMismatch(persisted.Characteristic, ext.Characteristic().String())
		}
		if persisted.FeatureSize != ext.Dimension() {
			return nil, featureSizeMismatch(persisted.FeatureSize, ext.Dimension())
		}
		importImages = persisted.ImportImages
	}

	store, err := imagestore.New(dataDir,
		imagestore.WithBucketSize(opts.BucketSize),
		imagestore.WithImportImages(importImages),
		imagestore.WithFetcher(opts.Fetcher),
		imagestore.WithLogger(opts.Logger.Logger),
	)
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(ext.Dimension(),
		index.WithDataDir(dataDir),
		index.WithDensity(opts.Density),
		index.WithLogger(opts.Logger.Logger),
	)
	if err != nil {
		return nil, err
	}

	return &ImageSearch{
		dataDir:   dataDir,
		extractor: ext,
		store:     store,
		index:     idx,
		workers:   opts.Workers,
		progress:  opts.Progress,
		logger:    opts.Logger,
		cfg: Config{
			ImportImages:   importImages,
			Characteristic: ext.Characteristic().String(),
			FeatureSize:    ext.Dimension(),
		},
	}, nil
}

// Store returns the underlying image store.
func (p *ImageSearch) Store() *imagestore.Store {
	return p.store
}

// Len returns the number of indexed images.
func (p *ImageSearch) Len() int {
	return p.index.Len()
}

// IndexOptions contains per-call configuration for Index.
type IndexOptions struct {
	// CheckUnique skips embeddings within the duplicate threshold of an
	// already indexed one.
	CheckUnique bool
}

// WithCheckUnique skips near-duplicate embeddings during indexing.
func WithCheckUnique() func(o *IndexOptions) {
	return func(o *IndexOptions) {
		o.CheckUnique = true
	}
}

// Index scans source and indexes every reachable image, returning how
// many embeddings were appended.
//
// Import and extraction run on a bounded worker pool; unreachable or
// non-image sources are logged and skipped. The final append phase is
// strictly sequential in ascending id order, and its errors are fatal to
// the whole call.
func (p *ImageSearch) Index(ctx context.Context, source string, optFns ...func(o *IndexOptions)) (int, error) {
	var iopts IndexOptions
	for _, fn := range optFns {
		fn(&iopts)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var uris []string
	for uri, err := range fetch.Scan(ctx, source) {
		if err != nil {
			p.logger.LogSkip(source, err)
			continue
		}
		uris = append(uris, uri)
	}
	if len(uris) == 0 {
		return 0, nil
	}

	var bar *progressbar.ProgressBar
	if p.progress {
		bar = progressbar.New(len(uris))
	}

	records, err := p.importAll(ctx, uris)
	if err != nil {
		return 0, err
	}

	pending, err := p.extractAll(ctx, records, bar)
	if err != nil {
		return 0, err
	}

	appended, err := p.appendAll(pending, iopts.CheckUnique)
	if err != nil {
		return appended, err
	}

	if err := p.cfg.save(p.dataDir); err != nil {
		return appended, err
	}

	p.logger.LogIndexed(len(uris), len(records), appended)

	return appended, nil
}

type importRecord struct {
	id  int
	uri string
}

// importAll runs the parallel import phase and compacts the imported
// records into dense ids ordered by discovery rank.
func (p *ImageSearch) importAll(ctx context.Context, uris []string) ([]importRecord, error) {
	base := p.index.Len()
	imported := make([]bool, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for rank, uri := range uris {
		g.Go(func() error {
			if err := p.store.Insert(gctx, base+rank, uri); err != nil {
				p.logger.LogSkip(uri, err)
				return nil
			}
			imported[rank] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Close import gaps so ids stay dense.
	var records []importRecord
	next := base
	for rank, ok := range imported {
		if !ok {
			continue
		}
		if provisional := base + rank; provisional != next {
			if err := p.store.Move(provisional, next); err != nil {
				return nil, err
			}
		}
		records = append(records, importRecord{id: next, uri: uris[rank]})
		next++
	}
	return records, nil
}

// extractAll runs the parallel extraction phase, persisting each
// embedding to a scratch slot. Records whose extraction fails are
// removed from the store before the append phase, keeping ids dense.
// It returns the surviving scratch paths in ascending id order.
func (p *ImageSearch) extractAll(ctx context.Context, records []importRecord, bar *progressbar.ProgressBar) ([]string, error) {
	scratch := make([]string, len(records))
	failed := make([]bool, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, rec := range records {
		g.Go(func() error {
			v, err := p.extractor.Extract(gctx, rec.uri)
			if err != nil {
				p.logger.LogSkip(rec.uri, err)
				failed[i] = true
				return nil
			}

			name := p.store.FileName(rec.id, "vec")
			if err := extractor.SaveVector(name, v); err != nil {
				return err
			}
			scratch[i] = name

			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		removeAll(scratch)
		return nil, err
	}

	// Drop records that produced no embedding, highest id first so the
	// shifts do not disturb lower failed ids.
	for i := len(records) - 1; i >= 0; i-- {
		if !failed[i] {
			continue
		}
		if err := p.store.Remove(records[i].id); err != nil {
			removeAll(scratch)
			return nil, err
		}
	}

	pending := make([]string, 0, len(records))
	for i := range records {
		if !failed[i] {
			pending = append(pending, scratch[i])
		}
	}
	return pending, nil
}

// appendAll is the strictly sequential append phase. Each scratch slot is
// deleted after its append; a fatal error still releases the remaining
// slots before propagating.
func (p *ImageSearch) appendAll(pending []string, checkUnique bool) (int, error) {
	appended := 0
	for i, name := range pending {
		v, err := extractor.LoadVector(name, p.extractor.Dimension())
		if err != nil {
			removeAll(pending[i:])
			return appended, err
		}

		if checkUnique {
			skipped, err := p.index.AppendUnique(v)
			if err != nil {
				removeAll(pending[i:])
				return appended, err
			}
			if skipped {
				// The store record would occupy the id the append
				// declined; drop it to keep both id spaces identical.
				if err := p.store.Remove(p.index.Len()); err != nil {
					removeAll(pending[i:])
					return appended, err
				}
				os.Remove(name)
				continue
			}
		} else {
			if err := p.index.Append(v); err != nil {
				removeAll(pending[i:])
				return appended, err
			}
		}

		appended++
		os.Remove(name)
	}
	return appended, nil
}

func removeAll(names []string) {
	for _, name := range names {
		if name != "" {
			os.Remove(name)
		}
	}
}

// SearchOptions contains per-call configuration for Search.
type SearchOptions struct {
	// ReturnMetadata resolves each hit to its stored metadata, with the
	// hit distance attached under the transient "distance" key.
	ReturnMetadata bool

	// MetadataFields filters returned metadata to the named fields.
	MetadataFields []string
}

// WithMetadata resolves search hits to their stored metadata, optionally
// filtered to the named fields.
func WithMetadata(fields ...string) func(o *SearchOptions) {
	return func(o *SearchOptions) {
		o.ReturnMetadata = true
		o.MetadataFields = fields
	}
}

// Search extracts the embedding of query and returns up to k hits
// ordered by ascending angular distance.
func (p *ImageSearch) Search(ctx context.Context, query string, k int, optFns ...func(o *SearchOptions)) ([]Result, error) {
	var sopts SearchOptions
	for _, fn := range optFns {
		fn(&sopts)
	}

	v, err := p.extractor.Extract(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := p.index.Search(v, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		result := Result{ID: hit.ID, Distance: hit.Distance}

		if sopts.ReturnMetadata {
			meta, err := p.store.LoadMetadata(hit.ID, sopts.MetadataFields...)
			if err != nil {
				return nil, err
			}
			meta["distance"] = hit.Distance
			result.Metadata = meta
		}

		results = append(results, result)
	}
	return results, nil
}

// Remove deletes the image at id from the index and the store, shifting
// every following id down by one in both.
func (p *ImageSearch) Remove(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.Remove(id); err != nil {
		return err
	}
	return p.store.Remove(id)
}

// Close persists the index and the collection config.
func (p *ImageSearch) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.cfg.save(p.dataDir); err != nil {
		return err
	}
	return p.index.Close()
}
