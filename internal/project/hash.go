// Package project defines the content digests the proof cache is built
// on: file hashes, per-definition Merkle inputs, and the base-key
// partitions. Everything is SHA-256 under a fixed domain label so a
// digest computed by one toolchain version never collides with another
// scheme's.
package project

import (
	"crypto/sha256"
	"encoding/hex"
)

// domain separates this module's digests from any other SHA-256 use.
const domain = "aura-digest-v1\x00"

// Digest is a fixed 256-bit content hash.
type Digest [32]byte

// HashBytes digests raw content under the domain label.
func HashBytes(b []byte) Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(b)
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// HashString digests a string under the domain label.
func HashString(s string) Digest {
	return HashBytes([]byte(s))
}

// Combine folds dependency digests into a content digest:
// H(content || dep1 || dep2 ...). Callers must present deps in a
// deterministic order; the Merkle layer sorts before combining.
func Combine(content Digest, deps ...Digest) Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(content[:])
	for _, d := range deps {
		h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Hex renders the digest as the lowercase hex key used by the cache's
// JSON schema and the perf artifact file names.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}
