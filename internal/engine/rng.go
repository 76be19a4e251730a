package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// DrawSpan is the sub-index window reserved per round. Games that need more
// than one draw per round (Mines placement, Plinko rows, the simulated Crash
// cash-out) derive draw i from nonce*DrawSpan+i, so the whole round stays
// reproducible from a single (serverSeed, clientSeed, nonce) triple.
const DrawSpan = 100

// Derive maps a seed triple to a float in [0,1).
//
// The construction is fixed by the fairness contract: the outcome is
// SHA-256(serverSeed ":" clientSeed ":" nonce), taking the first 4 bytes as a
// big-endian unsigned 32-bit integer divided by 0xFFFFFFFF. Anyone holding the
// revealed server seed can recompute it byte for byte.
func Derive(serverSeed, clientSeed string, nonce uint64) float64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", serverSeed, clientSeed, nonce)))
	n := binary.BigEndian.Uint32(sum[:4])
	return float64(n) / float64(0xFFFFFFFF)
}

// DeriveAt returns the index-th sub-draw of a round.
func DeriveAt(serverSeed, clientSeed string, nonce uint64, index int) float64 {
	return Derive(serverSeed, clientSeed, nonce*DrawSpan+uint64(index))
}
