package imagestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pixelsift/pixelsift/fetch"
)

const (
	// DefaultBucketSize is how many records share one subdirectory.
	DefaultBucketSize = 1000

	// DefaultImageWidth and DefaultImageHeight bound imported images.
	DefaultImageWidth  = 800
	DefaultImageHeight = 600

	jpegQuality = 80
)

// Metadata is the per-record JSON persisted next to every payload.
type Metadata struct {
	ID int `json:"id"`
	fetch.Metadata
	InternalPath string `json:"internal_path"`
}

// Options contains configuration options for a store.
type Options struct {
	// BucketSize is how many records share one subdirectory.
	BucketSize int

	// ImageWidth and ImageHeight bound imported images. Sources already
	// smaller are stored at their original size.
	ImageWidth  int
	ImageHeight int

	// ImportImages controls whether payload bytes are copied into the
	// store. When false only metadata is written.
	ImportImages bool

	// Fetcher loads source bytes and metadata.
	Fetcher fetch.Fetcher

	// Logger is the logger to use.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	BucketSize:   DefaultBucketSize,
	ImageWidth:   DefaultImageWidth,
	ImageHeight:  DefaultImageHeight,
	ImportImages: true,
	Logger:       slog.Default(),
}

// WithBucketSize overrides how many records share one subdirectory.
func WithBucketSize(size int) func(o *Options) {
	return func(o *Options) {
		o.BucketSize = size
	}
}

// WithImageSize bounds the dimensions of imported images.
func WithImageSize(width, height int) func(o *Options) {
	return func(o *Options) {
		o.ImageWidth = width
		o.ImageHeight = height
	}
}

// WithImportImages controls whether payload bytes are copied into the store.
func WithImportImages(importImages bool) func(o *Options) {
	return func(o *Options) {
		o.ImportImages = importImages
	}
}

// WithFetcher overrides the source fetcher.
func WithFetcher(f fetch.Fetcher) func(o *Options) {
	return func(o *Options) {
		o.Fetcher = f
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Store persists image payloads and metadata under dense ids.
type Store struct {
	dataDir      string
	bucketSize   int
	imageWidth   int
	imageHeight  int
	importImages bool
	fetcher      fetch.Fetcher
	logger       *slog.Logger
}

// New creates a store rooted at dataDir, creating it if needed.
func New(dataDir string, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.BucketSize <= 0 {
		return nil, fmt.Errorf("invalid bucket size: %d", opts.BucketSize)
	}

	if opts.Fetcher == nil {
		opts.Fetcher = fetch.NewClient()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	return &Store{
		dataDir:      filepath.Clean(dataDir),
		bucketSize:   opts.BucketSize,
		imageWidth:   opts.ImageWidth,
		imageHeight:  opts.ImageHeight,
		importImages: opts.ImportImages,
		fetcher:      opts.Fetcher,
		logger:       opts.Logger,
	}, nil
}

// DataDir returns the store root.
func (s *Store) DataDir() string {
	return s.dataDir
}

// BucketSize returns how many records share one subdirectory.
func (s *Store) BucketSize() int {
	return s.bucketSize
}

// ImportImages reports whether payload bytes are copied into the store.
func (s *Store) ImportImages() bool {
	return s.importImages
}

// WhatBucket returns the subdirectory a record id lands in.
func (s *Store) WhatBucket(id int) int {
	return id / s.bucketSize
}

// FileName returns the storage path for id with the given extension.
func (s *Store) FileName(id int, ext string) string {
	return filepath.Join(
		s.dataDir,
		strconv.Itoa(s.WhatBucket(id)),
		strconv.Itoa(id)+"."+ext,
	)
}

// Insert fetches uri and stores it under id. The payload is resized and
// re-encoded as JPEG unless it is an animated GIF, the target already
// exists, or payload import is disabled. Metadata is always written.
//
// The metadata JSON is the record-existence marker, so it is written
// last; any failure before it rolls the payload back, leaving no trace
// of the attempt.
func (s *Store) Insert(ctx context.Context, id int, uri string) error {
	data, err := s.fetcher.Get(ctx, uri)
	if err != nil {
		return err
	}
	if !fetch.IsImage(data) {
		return fmt.Errorf("%w: %s", ErrNotImage, uri)
	}

	meta, err := s.fetcher.Metadata(ctx, uri)
	if err != nil {
		return err
	}

	internalPath := uri
	wrote := false
	if s.importImages {
		internalPath, wrote, err = s.writePayload(id, data)
		if err != nil {
			return err
		}
	}

	if err := s.writeMetadata(id, Metadata{
		ID:           id,
		Metadata:     meta,
		InternalPath: internalPath,
	}); err != nil {
		if wrote {
			os.Remove(internalPath)
		}
		return err
	}
	return nil
}

// writePayload stores the image bytes for id and returns the target path.
// wrote reports whether a new file was created, so callers can tell a
// fresh write apart from the already-exists short-circuit.
func (s *Store) writePayload(id int, data []byte) (target string, wrote bool, err error) {
	if fetch.IsAnimatedGIF(data) {
		target = s.FileName(id, "gif")
		if _, err := os.Stat(target); err == nil {
			return target, false, nil
		}
		return target, true, writeFileAtomic(target, data)
	}

	target = s.FileName(id, "jpg")
	if _, err := os.Stat(target); err == nil {
		return target, false, nil
	}

	encoded, err := s.reencode(data)
	if err != nil {
		// Sniffed as an image but not decodable with the linked
		// codecs. Keep the original bytes.
		s.logger.Warn("storing image without re-encoding", "id", id, "error", err)
		target = s.FileName(id, string(fetch.DetectImageType(data)))
		return target, true, writeFileAtomic(target, data)
	}

	return target, true, writeFileAtomic(target, encoded)
}

// reencode scales data down to fit the configured bounds, preserving
// aspect ratio and never upscaling, and encodes the result as JPEG.
func (s *Store) reencode(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	scaleW := float64(s.imageWidth) / float64(width)
	scaleH := float64(s.imageHeight) / float64(height)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	if scale < 1 {
		width = int(float64(width) * scale)
		height = int(float64(height) * scale)
		if width < 1 {
			width = 1
		}
		if height < 1 {
			height = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) writeMetadata(id int, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.FileName(id, "json"), data)
}

// LoadMetadata returns the metadata for id, optionally filtered to the
// named fields.
func (s *Store) LoadMetadata(id int, fields ...string) (map[string]any, error) {
	data, err := os.ReadFile(s.FileName(id, "json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, err
	}

	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		filtered := make(map[string]any, len(fields))
		for _, field := range fields {
			if value, ok := meta[field]; ok {
				filtered[field] = value
			}
		}
		meta = filtered
	}
	return meta, nil
}

// LoadImage returns the stored payload bytes for id.
func (s *Store) LoadImage(id int) ([]byte, error) {
	p, err := s.payloadPath(id)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// DecodeImage returns the stored payload decoded to pixels.
func (s *Store) DecodeImage(id int) (image.Image, error) {
	data, err := s.LoadImage(id)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// LoadImageBase64 returns the stored payload as a base64 string, for
// embedding into data URIs.
func (s *Store) LoadImageBase64(id int) (string, error) {
	data, err := s.LoadImage(id)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (s *Store) payloadPath(id int) (string, error) {
	for ext := range fetch.ImageExtensions {
		p := s.FileName(id, strings.TrimPrefix(ext, "."))
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// Remove deletes the record at id and shifts every following record down
// by one, keeping ids dense. Linear in the number of stored records.
func (s *Store) Remove(id int) error {
	n := s.Count()
	if id < 0 || id >= n {
		return &ErrOutOfRange{ID: id, Length: n}
	}

	if err := s.deleteRecord(id); err != nil {
		return err
	}

	for next := id + 1; next < n; next++ {
		if err := s.shiftDown(next); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteRecord(id int) error {
	if p, err := s.payloadPath(id); err == nil {
		if err := os.Remove(p); err != nil {
			return err
		}
	}
	if err := os.Remove(s.FileName(id, "json")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// shiftDown moves record id to id-1, updating its metadata in place.
func (s *Store) shiftDown(id int) error {
	return s.Move(id, id-1)
}

// Move renames the record at from to id to, rewriting its metadata id and
// internal path. The target id must be vacant.
func (s *Store) Move(from, to int) error {
	if from == to {
		return nil
	}

	if p, err := s.payloadPath(from); err == nil {
		ext := strings.TrimPrefix(filepath.Ext(p), ".")
		target := s.FileName(to, ext)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.Rename(p, target); err != nil {
			return err
		}
	}

	meta, err := s.LoadMetadata(from)
	if err != nil {
		return err
	}
	meta["id"] = to
	if internal, ok := meta["internal_path"].(string); ok && internal != "" {
		if _, known := fetch.ImageExtensions[filepath.Ext(internal)]; known {
			ext := strings.TrimPrefix(filepath.Ext(internal), ".")
			meta["internal_path"] = s.FileName(to, ext)
		}
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.FileName(to, "json"), data); err != nil {
		return err
	}
	return os.Remove(s.FileName(from, "json"))
}

// List yields the stored payload paths in ascending id order. The
// sequence is lazy and restartable; limit <= 0 yields everything.
func (s *Store) List(limit int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, p := range s.ListWithIDs(limit) {
			if !yield(p) {
				return
			}
		}
	}
}

// ListWithIDs yields (id, payload path) pairs in ascending id order. The
// metadata JSON marks record existence; a record without an imported
// payload (import disabled) yields an empty path.
func (s *Store) ListWithIDs(limit int) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		count := 0
		for id := 0; ; id++ {
			if limit > 0 && count >= limit {
				return
			}
			if _, err := os.Stat(s.FileName(id, "json")); err != nil {
				return
			}
			p, err := s.payloadPath(id)
			if err != nil {
				p = ""
			}
			count++
			if !yield(id, p) {
				return
			}
		}
	}
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	n := 0
	for range s.ListWithIDs(0) {
		n++
	}
	return n
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over filename.
func writeFileAtomic(filename string, data []byte) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), filename)
}
