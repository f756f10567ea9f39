// Package fingerprint computes the 64-bit non-cryptographic URL fingerprint
// used by the bloom deduplication filter.
package fingerprint

import "github.com/cespare/xxhash/v2"

// Hash64 returns the xxhash64 fingerprint of a URL's raw byte form.
// Collisions are tolerated: deduplication is advisory, not authoritative
// (see SPEC_FULL.md §3 / spec.md §3).
func Hash64(rawURL []byte) uint64 {
	return xxhash.Sum64(rawURL)
}

// Hash64String is a convenience wrapper avoiding a []byte conversion at call
// sites that already hold a string.
func Hash64String(rawURL string) uint64 {
	return xxhash.Sum64String(rawURL)
}
