// Package index implements the angular-distance vector index behind
// pixelsift.
//
// The index stores fixed-dimension float32 vectors under dense integer ids
// (0..N-1, no gaps) and answers approximate nearest-neighbor queries using
// a forest of random-projection trees. The forest is built once per
// persisted generation: a freshly opened index accumulates vectors in
// memory and builds on Close, while mutations of an already persisted
// index rebuild into a volatile scratch index that atomically replaces the
// live file.
package index
