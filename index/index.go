package index

import (
	"container/heap"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/pixelsift/pixelsift/distance"
)

const (
	// FileName is the name of the index blob inside its data directory.
	FileName = "pixelsift.index"

	// DuplicateThreshold is the angular distance at or below which a
	// unique-checked append is considered a duplicate and skipped.
	// Empirical constant carried over from the reference dataset tuning.
	DuplicateThreshold = 0.05

	// DefaultDensity scales the number of trees built per item count:
	// trees = max(1, floor(density * items)).
	DefaultDensity = 0.001
)

// SearchResult is one ranked neighbor.
type SearchResult struct {
	ID       int
	Distance float32
}

// Group pairs an item with its nearest neighbors (excluding itself).
type Group struct {
	ID        int
	Neighbors []SearchResult
}

// Options contains configuration options for the index.
type Options struct {
	// DataDir is the directory holding the persisted blob. Required for
	// permanent indexes, forbidden for volatile ones.
	DataDir string

	// Volatile backs the index by a throwaway temp file. Volatile indexes
	// are single-use scratch space for rebuilds and tests.
	Volatile bool

	// Density scales the tree count at build time.
	Density float64

	// Seed seeds the random-projection tree construction. Zero picks a
	// time-based seed.
	Seed int64

	// Logger receives non-fatal diagnostics such as duplicate-skip
	// warnings. Defaults to a discarding logger.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options for the index.
var DefaultOptions = Options{
	Density: DefaultDensity,
}

// WithDataDir sets the directory of a permanent index.
func WithDataDir(dir string) func(o *Options) {
	return func(o *Options) {
		o.DataDir = dir
	}
}

// WithVolatile backs the index by a temp file.
func WithVolatile() func(o *Options) {
	return func(o *Options) {
		o.Volatile = true
	}
}

// WithDensity overrides the tree density.
func WithDensity(density float64) func(o *Options) {
	return func(o *Options) {
		o.Density = density
	}
}

// WithSeed fixes the tree-construction seed.
func WithSeed(seed int64) func(o *Options) {
	return func(o *Options) {
		o.Seed = seed
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Index stores fixed-dimension vectors under dense ids and answers angular
// nearest-neighbor queries.
//
// An Index is safe for concurrent reads, but mutations (Append, Remove,
// Pop, Close) serialize on an internal lock and must not race with reads
// from other processes sharing the same file.
type Index struct {
	mu       sync.RWMutex
	dim      int
	density  float64
	volatile bool
	path     string
	isNew    bool
	closed   bool
	vectors  [][]float32
	forest   *forest
	rng      *rand.Rand
	logger   *slog.Logger
}

// Open opens or creates an index of the given dimension.
//
// A permanent index requires WithDataDir and loads the blob found there, if
// any. A volatile index (WithVolatile) lives in a temp file and must not be
// given a data directory.
func Open(size int, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if size <= 0 {
		return nil, fmt.Errorf("invalid vector dimension: %d", size)
	}

	var path string
	switch {
	case opts.DataDir != "" && !opts.Volatile:
		info, err := os.Stat(opts.DataDir)
		if err == nil && !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrNotADirectory, opts.DataDir)
		}
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return nil, err
		}
		path = filepath.Join(opts.DataDir, FileName)
	case opts.DataDir == "" && !opts.Volatile:
		return nil, ErrNoDataDir
	case opts.DataDir == "" && opts.Volatile:
		p, err := tempIndexPath(os.TempDir())
		if err != nil {
			return nil, err
		}
		path = p
	default:
		return nil, fmt.Errorf("%w: %s", ErrVolatileDataDir, opts.DataDir)
	}

	return open(size, path, opts)
}

// newVolatileIn creates a volatile scratch index whose temp file lives in
// dir, so the final rename never crosses a filesystem boundary.
func newVolatileIn(dir string, size int, opts Options) (*Index, error) {
	path, err := tempIndexPath(dir)
	if err != nil {
		return nil, err
	}
	opts.Volatile = true
	opts.DataDir = ""
	return open(size, path, opts)
}

func open(size int, path string, opts Options) (*Index, error) {
	if opts.Density <= 0 {
		opts.Density = DefaultDensity
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	idx := &Index{
		dim:      size,
		density:  opts.Density,
		volatile: opts.Volatile,
		path:     path,
		isNew:    true,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   opts.Logger,
	}

	if _, err := os.Stat(path); err == nil {
		if err := idx.loadLocked(); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

// tempIndexPath reserves a unique, non-existing file name in dir.
func tempIndexPath(dir string) (string, error) {
	f, err := os.CreateTemp(dir, "pixelsift-*.index")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Remove(name); err != nil {
		return "", err
	}
	return name, nil
}

// Size returns the vector dimension.
func (i *Index) Size() int { return i.dim }

// Path returns the location of the persisted blob.
func (i *Index) Path() string { return i.path }

// Volatile reports whether the index is temp-backed.
func (i *Index) Volatile() bool { return i.volatile }

// Len returns how many items are indexed.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.vectors)
}

// Vector returns a copy of the vector stored at id.
func (i *Index) Vector(id int) ([]float32, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return nil, ErrClosed
	}
	if id < 0 || id >= len(i.vectors) {
		return nil, &ErrOutOfRange{ID: id, Length: len(i.vectors)}
	}
	return slices.Clone(i.vectors[id]), nil
}

// Vectors iterates over the stored vectors in id order. The yielded slices
// must not be modified.
func (i *Index) Vectors() iter.Seq2[int, []float32] {
	return func(yield func(int, []float32) bool) {
		i.mu.RLock()
		vectors := i.vectors
		i.mu.RUnlock()

		for id, v := range vectors {
			if !yield(id, v) {
				return
			}
		}
	}
}

// Append inserts a vector at the next id.
//
// An all-zero vector is rejected with ErrNullVector. Appending to an
// already persisted index is linear on the index size: the whole index is
// rebuilt into a scratch file that atomically replaces the live one.
func (i *Index) Append(v []float32) error {
	_, err := i.append(v, false)
	return err
}

// AppendUnique behaves like Append, but first looks up the nearest
// neighbor of v and skips the insert when it lies within
// DuplicateThreshold angular distance, returning true. The skip is logged
// as a warning, not an error.
func (i *Index) AppendUnique(v []float32) (bool, error) {
	return i.append(v, true)
}

func (i *Index) append(v []float32, checkUnique bool) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return false, ErrClosed
	}
	if len(v) != i.dim {
		return false, &ErrDimensionMismatch{Expected: i.dim, Actual: len(v)}
	}
	if distance.IsZero(v) {
		return false, ErrNullVector
	}

	if checkUnique && len(i.vectors) > 0 {
		nearest := i.searchLocked(v, 1, -1)
		if len(nearest) > 0 && nearest[0].Distance <= DuplicateThreshold {
			i.logger.Warn("skipping append of near-duplicate vector",
				"nearest_id", nearest[0].ID,
				"distance", nearest[0].Distance,
			)
			return true, nil
		}
	}

	if i.isNew {
		i.vectors = append(i.vectors, slices.Clone(v))
		return false, nil
	}

	return false, i.rebuildLocked(func(add func([]float32) error) error {
		for _, existing := range i.vectors {
			if err := add(existing); err != nil {
				return err
			}
		}
		return add(v)
	})
}

// Remove deletes the vector at id and shifts every following id down by
// one, preserving the dense 0..N-1 id range. Linear on the index size.
func (i *Index) Remove(id int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.removeLocked(id)
}

func (i *Index) removeLocked(id int) error {
	if i.closed {
		return ErrClosed
	}
	if i.isNew && len(i.vectors) == 0 {
		return ErrNotBuiltYet
	}
	if id < 0 || id >= len(i.vectors) {
		return &ErrOutOfRange{ID: id, Length: len(i.vectors)}
	}

	if i.isNew {
		i.vectors = slices.Delete(i.vectors, id, id+1)
		return nil
	}

	return i.rebuildLocked(func(add func([]float32) error) error {
		for pos, existing := range i.vectors {
			if pos == id {
				continue
			}
			if err := add(existing); err != nil {
				return err
			}
		}
		return nil
	})
}

// Pop removes and returns the vector at id, defaulting to the last one.
func (i *Index) Pop(id ...int) ([]float32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, ErrClosed
	}

	position := len(i.vectors) - 1
	if len(id) > 0 {
		position = id[0]
	}
	if position < 0 || position >= len(i.vectors) {
		if i.isNew && len(i.vectors) == 0 {
			return nil, ErrNotBuiltYet
		}
		return nil, &ErrOutOfRange{ID: position, Length: len(i.vectors)}
	}

	value := slices.Clone(i.vectors[position])
	if err := i.removeLocked(position); err != nil {
		return nil, err
	}
	return value, nil
}

// Search returns up to k ids ordered by ascending angular distance from q.
// Fewer than k results are returned when the index holds fewer items.
func (i *Index) Search(q []float32, k int) ([]SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(q) != i.dim {
		return nil, &ErrDimensionMismatch{Expected: i.dim, Actual: len(q)}
	}

	return i.searchLocked(q, k, -1), nil
}

// Nearest returns the single closest id to q.
func (i *Index) Nearest(q []float32) (SearchResult, error) {
	results, err := i.Search(q, 1)
	if err != nil {
		return SearchResult{}, err
	}
	if len(results) == 0 {
		return SearchResult{}, ErrEmptyIndex
	}
	return results[0], nil
}

// searchLocked runs the nearest-neighbor query under a held lock.
// exclude removes one id from the result set (used by group-by); pass -1
// to keep everything. On a built index candidates come from the forest and
// are re-ranked exactly; on a new index the live vectors are scanned.
func (i *Index) searchLocked(q []float32, k, exclude int) []SearchResult {
	total := len(i.vectors)
	if total == 0 {
		return nil
	}

	var candidateIDs []uint32
	if i.forest != nil {
		candidateIDs = i.forest.candidates(q, searchKFor(k, len(i.forest.trees)), total)
	}
	if len(candidateIDs) < k {
		// Not enough forest coverage (or unbuilt index): scan everything.
		candidateIDs = candidateIDs[:0]
		for id := 0; id < total; id++ {
			candidateIDs = append(candidateIDs, uint32(id))
		}
	}

	qMagnitude := distance.Magnitude(q)
	top := make(resultQueue, 0, k)
	heap.Init(&top)

	for _, id := range candidateIDs {
		if int(id) == exclude {
			continue
		}
		v := i.vectors[id]
		d := distance.Angular(distance.CosineWithMagnitudes(q, v, qMagnitude, distance.Magnitude(v)))

		if top.Len() < k {
			heap.Push(&top, resultItem{id: id, distance: d})
			continue
		}
		if d < top.Top().distance {
			heap.Pop(&top)
			heap.Push(&top, resultItem{id: id, distance: d})
		}
	}

	results := make([]SearchResult, top.Len())
	for n := top.Len() - 1; n >= 0; n-- {
		item := heap.Pop(&top).(resultItem)
		results[n] = SearchResult{ID: int(item.id), Distance: item.distance}
	}
	return results
}

// searchKFor scales the forest candidate budget with k and the tree count.
func searchKFor(k, trees int) int {
	searchK := k * trees * 16
	if searchK < 256 {
		searchK = 256
	}
	return searchK
}

// GroupBy returns, for one item (when position is given) or every item,
// its top nearest neighbors excluding itself.
func (i *Index) GroupBy(top int, position ...int) ([]Group, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return nil, ErrClosed
	}
	if top <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopCount, top)
	}
	if len(i.vectors) <= 1 {
		return nil, ErrEmptyIndex
	}

	ids := make([]int, 0, len(i.vectors))
	if len(position) > 0 {
		id := position[0]
		if id < 0 || id >= len(i.vectors) {
			return nil, &ErrOutOfRange{ID: id, Length: len(i.vectors)}
		}
		ids = append(ids, id)
	} else {
		for id := range i.vectors {
			ids = append(ids, id)
		}
	}

	groups := make([]Group, 0, len(ids))
	for _, id := range ids {
		neighbors := i.searchLocked(i.vectors[id], top, id)
		groups = append(groups, Group{ID: id, Neighbors: neighbors})
	}
	return groups, nil
}

// rebuildLocked materializes a scratch index fed by the caller, builds and
// persists it, atomically replaces the live blob and reloads. The scratch
// file is removed on every failure path.
func (i *Index) rebuildLocked(feed func(add func([]float32) error) error) error {
	scratch, err := newVolatileIn(filepath.Dir(i.path), i.dim, Options{
		Density: i.density,
		Seed:    i.rng.Int63(),
		Logger:  i.logger,
	})
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(scratch.path)
		}
	}()

	if err := feed(scratch.Append); err != nil {
		_ = scratch.Close()
		return err
	}
	if err := scratch.Close(); err != nil {
		return err
	}

	if err := os.Rename(scratch.path, i.path); err != nil {
		return err
	}
	committed = true

	return i.loadLocked()
}

// loadLocked parses the persisted blob into memory. Any parse failure is
// reported as a corrupt index.
func (i *Index) loadLocked() error {
	err := loadFromFile(i.path, func(r io.Reader) error {
		vectors, f, err := readIndex(r, i.dim)
		if err != nil {
			return err
		}
		i.vectors = vectors
		i.forest = f
		return nil
	})
	if err != nil {
		var dm *ErrDimensionMismatch
		if errors.As(err, &dm) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrCorruptIndex, i.path, err)
	}

	i.isNew = false
	return nil
}

// Close builds and persists a new index, then releases the in-memory
// structure. Closing an already persisted index only releases memory.
// The index is unusable afterwards.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}

	var err error
	if i.isNew {
		trees := treeCount(i.density, len(i.vectors))
		f := buildForest(i.vectors, i.dim, trees, i.rng)
		err = saveToFile(i.path, func(w io.Writer) error {
			return writeIndex(w, i.dim, i.vectors, f)
		})
	}

	i.vectors = nil
	i.forest = nil
	i.closed = true
	return err
}

// treeCount derives the forest size from the item count:
// max(1, floor(density * items)).
func treeCount(density float64, items int) int {
	n := int(math.Floor(density * float64(items)))
	if n < 1 {
		n = 1
	}
	return n
}
