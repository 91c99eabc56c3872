package fetch

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, source string) []string {
	t.Helper()

	var uris []string
	for uri, err := range Scan(context.Background(), source) {
		require.NoError(t, err)
		uris = append(uris, uri)
	}
	return uris
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	for _, name := range []string{"a.jpg", "b.png", filepath.Join("nested", "c.gif")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	got := collect(t, dir)
	sort.Strings(got)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "nested", "c.gif"),
	}, got)
}

func TestScanSingleFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "only.jpg")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))

	assert.Equal(t, []string{p}, collect(t, p))
}

func TestScanHTTPSource(t *testing.T) {
	uri := "https://example.com/photo.jpg"
	assert.Equal(t, []string{uri}, collect(t, uri))
}

func TestScanMissingSource(t *testing.T) {
	var errs []error
	for _, err := range Scan(context.Background(), filepath.Join(t.TempDir(), "missing")) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
}

func TestScanCSV(t *testing.T) {
	lines := "one.jpg,ignored\ntwo.jpg\n\nthree.jpg\n"
	want := []string{"one.jpg", "two.jpg", "three.jpg"}

	t.Run("Plain", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "list.csv")
		require.NoError(t, os.WriteFile(p, []byte(lines), 0644))
		assert.Equal(t, want, collect(t, p))
	})

	t.Run("Gzip", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "list.csv.gz")
		f, err := os.Create(p)
		require.NoError(t, err)
		gw := gzip.NewWriter(f)
		_, err = gw.Write([]byte(lines))
		require.NoError(t, err)
		require.NoError(t, gw.Close())
		require.NoError(t, f.Close())

		assert.Equal(t, want, collect(t, p))
	})

	t.Run("Zstd", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "list.csv.zst")
		f, err := os.Create(p)
		require.NoError(t, err)
		zw, err := zstd.NewWriter(f)
		require.NoError(t, err)
		_, err = zw.Write([]byte(lines))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())

		assert.Equal(t, want, collect(t, p))
	})

	t.Run("LZ4", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "list.csv.lz4")
		f, err := os.Create(p)
		require.NoError(t, err)
		lw := lz4.NewWriter(f)
		_, err = lw.Write([]byte(lines))
		require.NoError(t, err)
		require.NoError(t, lw.Close())
		require.NoError(t, f.Close())

		assert.Equal(t, want, collect(t, p))
	})

	t.Run("Zip", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "list.csv.zip")
		f, err := os.Create(p)
		require.NoError(t, err)
		zw := zip.NewWriter(f)
		member, err := zw.Create("list.csv")
		require.NoError(t, err)
		_, err = member.Write([]byte(lines))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())

		assert.Equal(t, want, collect(t, p))
	})
}

func TestScanCSVStopsEarly(t *testing.T) {
	p := filepath.Join(t.TempDir(), "list.csv")
	require.NoError(t, os.WriteFile(p, []byte("a.jpg\nb.jpg\nc.jpg\n"), 0644))

	var got []string
	for uri, err := range Scan(context.Background(), p) {
		require.NoError(t, err)
		got = append(got, uri)
		break
	}
	assert.Equal(t, []string{"a.jpg"}, got)
}
