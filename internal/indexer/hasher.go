package indexer

import "crypto/sha256"

// ComputeSetID computes the SHA256 hash of a canonical community set's
// octets. The hash is computed on the sorted, deduplicated form so that
// any ordering of the same values maps to one row. Returns a 32-byte
// digest suitable for BYTEA storage.
func ComputeSetID(canonicalOctets []byte) []byte {
	h := sha256.Sum256(canonicalOctets)
	return h[:]
}
