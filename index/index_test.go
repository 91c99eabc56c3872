package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("PermanentRequiresDataDir", func(t *testing.T) {
		_, err := Open(8)
		assert.ErrorIs(t, err, ErrNoDataDir)
	})

	t.Run("VolatileRejectsDataDir", func(t *testing.T) {
		_, err := Open(8, WithDataDir(t.TempDir()), WithVolatile())
		assert.ErrorIs(t, err, ErrVolatileDataDir)
	})

	t.Run("DataDirCollidesWithFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "occupied")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		_, err := Open(8, WithDataDir(file))
		assert.ErrorIs(t, err, ErrNotADirectory)
	})

	t.Run("CorruptIndexFile", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not an index"), 0644))

		_, err := Open(8, WithDataDir(dir))
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})

	t.Run("Volatile", func(t *testing.T) {
		idx, err := Open(8, WithVolatile())
		require.NoError(t, err)
		t.Cleanup(func() { os.Remove(idx.Path()) })

		assert.True(t, idx.Volatile())
		assert.Equal(t, 8, idx.Size())
		assert.NoError(t, idx.Close())
	})
}

func TestAppend(t *testing.T) {
	t.Run("NullVector", func(t *testing.T) {
		idx := newVolatile(t, 4)

		err := idx.Append([]float32{0, 0, 0, 0})
		assert.ErrorIs(t, err, ErrNullVector)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := newVolatile(t, 4)

		err := idx.Append([]float32{1, 2})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 4, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
	})

	t.Run("AssignsDenseIDs", func(t *testing.T) {
		idx := newVolatile(t, 4)

		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 1, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 0, 1, 0}))
		assert.Equal(t, 3, idx.Len())
	})

	t.Run("RebuildAfterPersist", func(t *testing.T) {
		dir := t.TempDir()

		idx, err := Open(3, WithDataDir(dir), WithSeed(1))
		require.NoError(t, err)
		require.NoError(t, idx.Append([]float32{1, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 1, 0}))
		require.NoError(t, idx.Close())

		reopened, err := Open(3, WithDataDir(dir), WithSeed(1))
		require.NoError(t, err)
		require.NoError(t, reopened.Append([]float32{0, 0, 1}))

		assert.Equal(t, 3, reopened.Len())
		v, err := reopened.Vector(2)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 1}, v)

		// Earlier ids are untouched by the rebuild.
		v, err = reopened.Vector(0)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0, 0}, v)
		require.NoError(t, reopened.Close())
	})
}

func TestAppendUnique(t *testing.T) {
	idx := newVolatile(t, 4)

	dup, err := idx.AppendUnique([]float32{1, 0, 0, 0})
	require.NoError(t, err)
	assert.False(t, dup)

	// Same direction, different magnitude: angular distance 0.
	dup, err = idx.AppendUnique([]float32{2, 0, 0, 0})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, 1, idx.Len())

	// Clearly distinct vector is inserted.
	dup, err = idx.AppendUnique([]float32{0, 1, 0, 0})
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 2, idx.Len())
}

func TestSearch(t *testing.T) {
	t.Run("ExactDuplicateFirst", func(t *testing.T) {
		idx := newVolatile(t, 4)
		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 1, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 0, 1, 0}))

		results, err := idx.Search([]float32{1, 0, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 0, results[0].ID)
		assert.InDelta(t, 0, results[0].Distance, 1e-4)
		assert.Less(t, results[0].Distance, results[1].Distance)
	})

	t.Run("FewerThanK", func(t *testing.T) {
		idx := newVolatile(t, 4)
		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))

		results, err := idx.Search([]float32{1, 1, 0, 0}, 16)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("InvalidK", func(t *testing.T) {
		idx := newVolatile(t, 4)
		_, err := idx.Search([]float32{1, 0, 0, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("Empty", func(t *testing.T) {
		idx := newVolatile(t, 4)
		results, err := idx.Search([]float32{1, 0, 0, 0}, 4)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestNearest(t *testing.T) {
	idx := newVolatile(t, 4)
	require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
	require.NoError(t, idx.Append([]float32{0, 1, 0, 0}))

	result, err := idx.Nearest([]float32{0.9, 0.1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ID)

	empty := newVolatile(t, 4)
	_, err = empty.Nearest([]float32{1, 0, 0, 0})
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestRemove(t *testing.T) {
	t.Run("NotBuiltYet", func(t *testing.T) {
		idx := newVolatile(t, 4)
		assert.ErrorIs(t, idx.Remove(0), ErrNotBuiltYet)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		idx := newVolatile(t, 4)
		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))

		err := idx.Remove(5)
		var oor *ErrOutOfRange
		require.ErrorAs(t, err, &oor)
		assert.Equal(t, 5, oor.ID)
		assert.Equal(t, 1, oor.Length)
	})

	t.Run("ShiftsFollowingIDs", func(t *testing.T) {
		idx := newVolatile(t, 4)
		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 1, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 0, 1, 0}))

		require.NoError(t, idx.Remove(1))
		assert.Equal(t, 2, idx.Len())

		v, err := idx.Vector(1)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 1, 0}, v)
	})

	t.Run("PersistedRebuild", func(t *testing.T) {
		dir := t.TempDir()

		idx, err := Open(3, WithDataDir(dir), WithSeed(7))
		require.NoError(t, err)
		require.NoError(t, idx.Append([]float32{1, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 1, 0}))
		require.NoError(t, idx.Append([]float32{0, 0, 1}))
		require.NoError(t, idx.Close())

		reopened, err := Open(3, WithDataDir(dir), WithSeed(7))
		require.NoError(t, err)
		require.NoError(t, reopened.Remove(0))

		assert.Equal(t, 2, reopened.Len())
		v, err := reopened.Vector(0)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1, 0}, v)
		require.NoError(t, reopened.Close())
	})
}

func TestPop(t *testing.T) {
	idx := newVolatile(t, 4)
	require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
	require.NoError(t, idx.Append([]float32{0, 1, 0, 0}))

	value, err := idx.Pop()
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0, 0}, value)
	assert.Equal(t, 1, idx.Len())

	value, err = idx.Pop(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, value)
	assert.Equal(t, 0, idx.Len())
}

func TestGroupBy(t *testing.T) {
	t.Run("InvalidTop", func(t *testing.T) {
		idx := newVolatile(t, 4)
		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 1, 0, 0}))

		_, err := idx.GroupBy(0)
		assert.ErrorIs(t, err, ErrInvalidTopCount)
	})

	t.Run("EmptyIndex", func(t *testing.T) {
		idx := newVolatile(t, 4)
		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))

		_, err := idx.GroupBy(2)
		assert.ErrorIs(t, err, ErrEmptyIndex)
	})

	t.Run("ExcludesSelf", func(t *testing.T) {
		idx := newVolatile(t, 4)
		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
		require.NoError(t, idx.Append([]float32{0.9, 0.1, 0, 0}))
		require.NoError(t, idx.Append([]float32{0, 0, 1, 0}))

		groups, err := idx.GroupBy(1)
		require.NoError(t, err)
		require.Len(t, groups, 3)

		for _, group := range groups {
			require.Len(t, group.Neighbors, 1)
			assert.NotEqual(t, group.ID, group.Neighbors[0].ID)
		}
		assert.Equal(t, 1, groups[0].Neighbors[0].ID)
		assert.Equal(t, 0, groups[1].Neighbors[0].ID)
	})

	t.Run("SinglePosition", func(t *testing.T) {
		idx := newVolatile(t, 4)
		require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
		require.NoError(t, idx.Append([]float32{0.9, 0.1, 0, 0}))

		groups, err := idx.GroupBy(1, 0)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, 0, groups[0].ID)
		assert.Equal(t, 1, groups[0].Neighbors[0].ID)
	})
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.5, 0.5, 0, 0},
		{0, 0, 0.25, 0.75},
	}

	idx, err := Open(4, WithDataDir(dir), WithSeed(42))
	require.NoError(t, err)
	for _, v := range vectors {
		require.NoError(t, idx.Append(v))
	}
	require.NoError(t, idx.Close())

	reopened, err := Open(4, WithDataDir(dir), WithSeed(42))
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, len(vectors), reopened.Len())
	for id, want := range vectors {
		got, err := reopened.Vector(id)
		require.NoError(t, err)
		for d := range want {
			assert.InDelta(t, want[d], got[d], 1e-6)
		}
	}

	// Iteration follows id order.
	next := 0
	for id, v := range reopened.Vectors() {
		assert.Equal(t, next, id)
		assert.Len(t, v, 4)
		next++
	}
	assert.Equal(t, len(vectors), next)

	// Search still works after reload.
	results, err := reopened.Search(vectors[1], 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 1, results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-4)
}

func TestClose(t *testing.T) {
	idx := newVolatile(t, 4)
	require.NoError(t, idx.Append([]float32{1, 0, 0, 0}))
	require.NoError(t, idx.Close())

	// Close persisted the blob even for a volatile index.
	_, err := os.Stat(idx.Path())
	assert.NoError(t, err)

	// Idempotent, and operations after close fail.
	assert.NoError(t, idx.Close())
	assert.ErrorIs(t, idx.Append([]float32{1, 0, 0, 0}), ErrClosed)
	_, err = idx.Search([]float32{1, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

// newVolatile opens a volatile index and removes its backing file on
// cleanup.
func newVolatile(t *testing.T, size int) *Index {
	t.Helper()

	idx, err := Open(size, WithVolatile(), WithSeed(99))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = idx.Close()
		_ = os.Remove(idx.Path())
	})
	return idx
}
