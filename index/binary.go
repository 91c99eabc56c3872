package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

const (
	// magicNumber identifies a pixelsift index blob ("PXIF").
	magicNumber uint32 = 0x50584946

	formatVersion uint32 = 1

	nodeKindInternal byte = 0
	nodeKindLeaf     byte = 1
)

var byteOrder = binary.LittleEndian

// fileHeader is the fixed-size header of the persisted index blob.
type fileHeader struct {
	Magic     uint32
	Version   uint32
	Dimension uint32
	Count     uint32
	TreeCount uint32
}

// writeIndex serializes the vectors and the built forest.
func writeIndex(w io.Writer, dim int, vectors [][]float32, f *forest) error {
	header := fileHeader{
		Magic:     magicNumber,
		Version:   formatVersion,
		Dimension: uint32(dim),
		Count:     uint32(len(vectors)),
		TreeCount: uint32(len(f.trees)),
	}
	if err := binary.Write(w, byteOrder, &header); err != nil {
		return err
	}

	for _, v := range vectors {
		if err := binary.Write(w, byteOrder, v); err != nil {
			return err
		}
	}

	for _, root := range f.trees {
		if err := writeNode(w, root); err != nil {
			return err
		}
	}

	return nil
}

func writeNode(w io.Writer, n *treeNode) error {
	if n.leaf() {
		if _, err := w.Write([]byte{nodeKindLeaf}); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, uint32(len(n.items))); err != nil {
			return err
		}
		return binary.Write(w, byteOrder, n.items)
	}

	if _, err := w.Write([]byte{nodeKindInternal}); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, n.plane); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, n.offset); err != nil {
		return err
	}
	if err := writeNode(w, n.left); err != nil {
		return err
	}
	return writeNode(w, n.right)
}

// readIndex parses a persisted blob. wantDim is the dimension the caller
// opened the index with; a persisted blob with a different dimension is
// rejected.
func readIndex(r io.Reader, wantDim int) ([][]float32, *forest, error) {
	var header fileHeader
	if err := binary.Read(r, byteOrder, &header); err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	if header.Magic != magicNumber {
		return nil, nil, fmt.Errorf("bad magic 0x%08x", header.Magic)
	}
	if header.Version != formatVersion {
		return nil, nil, fmt.Errorf("unsupported format version %d", header.Version)
	}
	if int(header.Dimension) != wantDim {
		return nil, nil, &ErrDimensionMismatch{Expected: wantDim, Actual: int(header.Dimension)}
	}

	vectors := make([][]float32, header.Count)
	for i := range vectors {
		vectors[i] = make([]float32, header.Dimension)
		if err := binary.Read(r, byteOrder, vectors[i]); err != nil {
			return nil, nil, fmt.Errorf("reading vector %d: %w", i, err)
		}
	}

	f := &forest{dim: wantDim, trees: make([]*treeNode, header.TreeCount)}
	for t := range f.trees {
		root, err := readNode(r, wantDim, int(header.Count))
		if err != nil {
			return nil, nil, fmt.Errorf("reading tree %d: %w", t, err)
		}
		f.trees[t] = root
	}

	return vectors, f, nil
}

func readNode(r io.Reader, dim, count int) (*treeNode, error) {
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return nil, err
	}

	switch kind[0] {
	case nodeKindLeaf:
		var n uint32
		if err := binary.Read(r, byteOrder, &n); err != nil {
			return nil, err
		}
		if int(n) > count {
			return nil, fmt.Errorf("leaf claims %d items of %d indexed", n, count)
		}
		items := make([]uint32, n)
		if err := binary.Read(r, byteOrder, items); err != nil {
			return nil, err
		}
		for _, id := range items {
			if int(id) >= count {
				return nil, fmt.Errorf("leaf item %d out of range", id)
			}
		}
		return &treeNode{items: items}, nil

	case nodeKindInternal:
		plane := make([]float32, dim)
		if err := binary.Read(r, byteOrder, plane); err != nil {
			return nil, err
		}
		var offset float32
		if err := binary.Read(r, byteOrder, &offset); err != nil {
			return nil, err
		}
		left, err := readNode(r, dim, count)
		if err != nil {
			return nil, err
		}
		right, err := readNode(r, dim, count)
		if err != nil {
			return nil, err
		}
		return &treeNode{plane: plane, offset: offset, left: left, right: right}, nil

	default:
		return nil, fmt.Errorf("unknown node kind %d", kind[0])
	}
}

// saveToFile writes the blob to a temp file in the target directory, syncs
// it and atomically renames it over filename, so a crash mid-write never
// corrupts the live index.
func saveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}

// loadFromFile memory-maps the blob for a zero-copy parse, falling back to
// buffered reads when the file cannot be mapped (e.g. empty files).
func loadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if m, err := mmap.Map(f, mmap.RDONLY, 0); err == nil {
		defer m.Unmap()
		return readFunc(bytes.NewReader(m))
	}

	return readFunc(bufio.NewReaderSize(f, 256*1024))
}
