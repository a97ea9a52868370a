package sketch

import (
	"encoding/binary"

	xxhash "github.com/OneOfOne/xxhash"
)

// idSeed is the fixed seed for the ID priority hash H_s, deliberately
// distinct from any row seed (spec.md §4.2).
const idSeed = 0xFFFFFFFF

// seededXXH32 hashes buf with a 32-bit seeded XXH32, matching the spec's
// "XXH32(x, seed=...)" recipe exactly. OneOfOne/xxhash is used rather than
// the pack's more common cespare/xxhash/v2 because the spec fixes the hash
// width at 32 bits (IDs and row indices are both 32-bit) and xxhash/v2 only
// exposes XXH64 — see DESIGN.md.
func seededXXH32(seed uint32, buf []byte) uint32 {
	h := xxhash.NewS32(seed)
	_, _ = h.Write(buf)
	return h.Sum32()
}

// rowHash is H_r(x, r): reduces a column value's hash x to a column index
// within row r. Callers still need to take the result mod W.
func rowHash(x uint32, row int) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], x)
	return seededXXH32(uint32(row), buf[:])
}

// idHash is H_s(id): the bottom-k priority hash.
func idHash(id uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], id)
	return seededXXH32(idSeed, buf[:])
}

// deriveRecordID derives the per-record ID from the monotonically
// incremented ingest counter n and the sketch's own random seed, so that
// two independently-built sketches that happen to reach the same n value
// still land in disjoint ID spaces with high probability (spec.md §4.2).
func deriveRecordID(n uint32, sketchSeed uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], n)
	return seededXXH32(sketchSeed, buf[:])
}

// priority is the (H_s(id), id) tuple bottom-k selection and the merge
// order are both defined over; ties in H_s are broken by id so the order
// is a strict total order (spec.md §4.3, §4.5).
type priority struct {
	hash uint32
	id   uint32
}

func priorityOf(id uint32) priority {
	return priority{hash: idHash(id), id: id}
}

// less reports whether a sorts strictly before b under (H_s, id).
func (a priority) less(b priority) bool {
	if a.hash != b.hash {
		return a.hash < b.hash
	}
	return a.id < b.id
}
