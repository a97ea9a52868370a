// Package hostdispatch implements the host-side hashing contract the
// sketch core leaves unspecified: turning an arbitrary attribute value
// (string, int64, float64, or NULL) into the pre-hashed uint32 the core's Add and
// Estimate expect. The core only ever sees already-hashed columns.
package hostdispatch

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// NullHash is the sentinel hash a NULL column value must be mapped to, per
// the sketch core's NULL convention: NULLs collide into one bucket rather
// than each hashing independently, so the usual equality-predicate
// semantics still apply ("col IS NULL" behaves like any other value).
const NullHash uint32 = 0

// HashString dispatches a string attribute value through murmur3, folded
// to 32 bits. murmur3 is chosen over the row/id hash's own xxhash so a
// host composing a multi-table key out of both can distinguish accidental
// collisions between the two hash families.
func HashString(v string) uint32 {
	h := murmur3.Sum64([]byte(v))
	out := uint32(h ^ (h >> 32))
	if out == NullHash {
		// murmur3 hashes the empty string to 0; keep every string value
		// off the NULL sentinel.
		out = 1
	}
	return out
}

// HashInt64 dispatches an int64 attribute value through unseeded
// xxhash/v2 (XXH64), folded to 32 bits.
func HashInt64(v int64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	h := xxhash.Sum64(buf[:])
	return uint32(h ^ (h >> 32))
}

// HashFloat64 dispatches a float64 attribute value by reinterpreting its
// bit pattern and routing through HashInt64, so NaN/−0/+0 follow IEEE 754
// bit-equality rather than Go's float equality.
func HashFloat64(v float64) uint32 {
	return HashInt64(int64(math.Float64bits(v)))
}

// Kind discriminates which field of a Column is live.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
)

// Column is a host-side attribute value of one of the types the sketch
// supports, tagged by Kind so a zero-value string or int is unambiguous.
type Column struct {
	Kind  Kind    `json:"kind"`
	Str   string  `json:"str,omitempty"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
}

// Hash dispatches a Column to the hash family matching its Kind.
func Hash(c Column) uint32 {
	switch c.Kind {
	case KindNull:
		return NullHash
	case KindString:
		return HashString(c.Str)
	case KindFloat:
		return HashFloat64(c.Float)
	default:
		return HashInt64(c.Int)
	}
}

// HashRecord dispatches every column of a record in order, producing the
// columnHashes slice Sketch.Add and Sketch.Estimate expect.
func HashRecord(cols []Column) []uint32 {
	out := make([]uint32, len(cols))
	for i, c := range cols {
		out[i] = Hash(c)
	}
	return out
}
