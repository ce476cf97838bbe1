package procedural

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"strings"
)

// DeriveSeed maps an active seed and integer coordinates to a 64-bit value.
// The key "seed:c1:c2:..." is hashed with SHA-256 and the first 8 bytes are
// read big-endian. Adjacent coordinates yield uncorrelated values.
func DeriveSeed(activeSeed string, coords ...int64) uint64 {
	var b strings.Builder
	b.Grow(len(activeSeed) + len(coords)*8)
	b.WriteString(activeSeed)
	for _, c := range coords {
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(c, 10))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return binary.BigEndian.Uint64(sum[:8])
}
