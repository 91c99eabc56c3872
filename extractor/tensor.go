package extractor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SaveVector persists an embedding to a scratch file as little-endian
// raw float32 values.
func SaveVector(filename string, vector []float32) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, vector); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadVector reads an embedding of the given dimension back from a
// scratch file.
func LoadVector(filename string, dim int) ([]float32, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() != int64(dim)*4 {
		return nil, fmt.Errorf("scratch vector %s holds %d bytes, want %d", filename, info.Size(), dim*4)
	}

	vector := make([]float32, dim)
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, vector); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, fmt.Errorf("scratch vector %s truncated", filename)
		}
		return nil, err
	}
	return vector, nil
}
