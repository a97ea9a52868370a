package sketch

import (
	"crypto/rand"
	"encoding/binary"
)

// randomSeed produces the per-sketch random seed of spec.md §4.2. crypto/rand
// is used instead of a shared math/rand source so concurrently constructed
// sketches (the extrinsic parallel-build model of spec.md §5) never need to
// coordinate over a single PRNG's state to stay independent.
func randomSeed() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
