package fetch

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Scan enumerates candidate image URIs from source. The source may be a
// directory (walked recursively), a single local file, an HTTP(S) location,
// or a CSV list of URIs, optionally gzip, zstd, lz4 or zip compressed.
// The returned sequence is lazy and restartable; per-entry failures are
// yielded alongside the URI slot so callers decide whether to skip.
func Scan(ctx context.Context, source string) iter.Seq2[string, error] {
	switch {
	case isCSV(source):
		return scanCSV(ctx, source)
	default:
		return scanPath(source)
	}
}

func isCSV(source string) bool {
	lower := strings.ToLower(source)
	for _, suffix := range []string{".csv", ".csv.gz", ".csv.zst", ".csv.lz4", ".csv.zip"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// scanPath walks a directory tree, or yields a single file as-is.
func scanPath(source string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if InferProtocol(source) == ProtocolHTTP {
			yield(source, nil)
			return
		}

		p := localPath(source)
		info, err := os.Stat(p)
		if err != nil {
			yield("", err)
			return
		}
		if !info.IsDir() {
			yield(p, nil)
			return
		}

		err = filepath.WalkDir(p, func(entry string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield("", err) {
					return fs.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if !yield(entry, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", err)
		}
	}
}

// scanCSV yields one URI per line of a possibly compressed CSV file. Only
// the first column is read; blank lines are skipped.
func scanCSV(ctx context.Context, source string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rc, err := openCSV(ctx, source)
		if err != nil {
			yield("", err)
			return
		}
		defer rc.Close()

		sc := bufio.NewScanner(rc)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if i := strings.IndexByte(line, ','); i >= 0 {
				line = line[:i]
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", err)
		}
	}
}

// openCSV opens source and unwraps its compression layer, if any.
func openCSV(ctx context.Context, source string) (io.ReadCloser, error) {
	lower := strings.ToLower(source)

	if strings.HasSuffix(lower, ".csv.zip") {
		return openZippedCSV(localPath(source))
	}

	raw, err := openRaw(ctx, source)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(lower, ".csv.gz"):
		gz, err := gzip.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, err
		}
		return &wrappedReader{Reader: gz, closers: []io.Closer{gz, raw}}, nil
	case strings.HasSuffix(lower, ".csv.zst"):
		zr, err := zstd.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, err
		}
		zrc := zr.IOReadCloser()
		return &wrappedReader{Reader: zrc, closers: []io.Closer{zrc, raw}}, nil
	case strings.HasSuffix(lower, ".csv.lz4"):
		return &wrappedReader{Reader: lz4.NewReader(raw), closers: []io.Closer{raw}}, nil
	default:
		return raw, nil
	}
}

func openRaw(ctx context.Context, source string) (io.ReadCloser, error) {
	if InferProtocol(source) == ProtocolHTTP {
		c := NewClient()
		resp, err := c.doHTTP(ctx, source)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
	return os.Open(localPath(source))
}

// openZippedCSV reads the first CSV member of a zip archive.
func openZippedCSV(p string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	for _, member := range zr.File {
		if strings.HasSuffix(strings.ToLower(member.Name), ".csv") {
			rc, err := member.Open()
			if err != nil {
				zr.Close()
				return nil, err
			}
			return &wrappedReader{Reader: rc, closers: []io.Closer{rc, zr}}, nil
		}
	}
	zr.Close()
	return nil, fmt.Errorf("no csv member in %s", p)
}

// wrappedReader closes a chain of readers in order.
type wrappedReader struct {
	io.Reader
	closers []io.Closer
}

func (w *wrappedReader) Close() error {
	var firstErr error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
