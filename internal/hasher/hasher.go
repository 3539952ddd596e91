// Package hasher computes content hashes for published artifacts.
package hasher

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"
)

// Digest algorithms.
const (
	AlgoBLAKE3 = "blake3"
	AlgoSHA256 = "sha256"
)

// Algorithms lists the names Digest accepts.
var Algorithms = []string{AlgoBLAKE3, AlgoSHA256}

// ContentHash computes the xxHash64 of data and returns a hex string
// truncated to the given length. It is a short identity for records and
// dedup, not an integrity check.
func ContentHash(data []byte, hexLen int) string {
	return truncate(binary.BigEndian.AppendUint64(nil, xxhash.Sum64(data)), hexLen)
}

// Digest returns the full hex digest of data with the given algorithm,
// prefixed with the algorithm name ("blake3:...").
func Digest(data []byte, algo string) (string, error) {
	switch algo {
	case AlgoBLAKE3, "":
		sum := blake3.Sum256(data)
		return AlgoBLAKE3 + ":" + hex.EncodeToString(sum[:]), nil
	case AlgoSHA256:
		sum := sha256.Sum256(data)
		return AlgoSHA256 + ":" + hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm: %s", algo)
	}
}

func truncate(sum []byte, hexLen int) string {
	full := hex.EncodeToString(sum)
	if hexLen > 0 && hexLen < len(full) {
		return full[:hexLen]
	}
	return full
}
