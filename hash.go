// Digest algorithms for save buffers.
//
// A digest identifies the bytes of the most recent save so a host can tell
// whether two saves produced the same document without holding both. Three
// algorithms are supported, selectable via Config.DigestAlgorithm.
package pdfbridge

import (
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Digest algorithm constants.
const (
	AlgXXHash3 = 1 // Default, fastest
	AlgFNV1a   = 2
	AlgBlake2b = 3 // 256-bit, collision resistant
)

// digest returns the hex digest of data, or "" for an unknown algorithm.
func digest(data []byte, alg int) string {
	switch alg {
	case AlgXXHash3:
		sum := xxh3.Hash128(data).Bytes()
		return fmt.Sprintf("%x", sum[:])
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write(data)
		return fmt.Sprintf("%016x", h.Sum64())
	case AlgBlake2b:
		sum := blake2b.Sum256(data)
		return fmt.Sprintf("%x", sum[:])
	default:
		return ""
	}
}

func validAlgorithm(alg int) bool {
	return alg >= AlgXXHash3 && alg <= AlgBlake2b
}
