// Package imagestore persists image payloads and their metadata under
// dense integer ids.
//
// Files are bucketed across subdirectories to keep directory sizes
// bounded: record id lands in directory id/BucketSize, as payload
// "{bucket}/{id}.jpg" plus metadata "{bucket}/{id}.json". Removal shifts
// every following record down by one id so the id space stays an unbroken
// 0..N-1 range.
package imagestore
