// Package extractor defines the embedding-extraction contract.
//
// The extraction network itself lives behind the Extractor interface:
// anything that can turn an image URI into a fixed-dimension float32
// vector plugs in. Characteristics name the supported extraction
// profiles so a persisted collection can be reopened with the same
// network it was indexed with.
package extractor
