// Package fetch resolves image sources for indexing.
//
// It infers the protocol of a URI (local file, HTTP(S), object store),
// loads bytes and per-file metadata, sniffs image formats from magic
// bytes, and enumerates candidate URIs from directories, single files and
// CSV lists (optionally gzip, zstd, lz4 or zip compressed).
package fetch
