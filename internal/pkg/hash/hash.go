// Package hash computes the content hashes Harmonium's file store is keyed
// by. Identical bytes always produce identical hashes regardless of filename,
// which is what makes deduplication possible.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Bytes computes the hex-encoded SHA-256 hash of a byte slice.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
