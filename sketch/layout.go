package sketch

import (
	"encoding/binary"
	"fmt"
	"math"
)

// maxSketchBytes is the host memory cap from spec.md §5: a single sketch
// must never exceed 1 GiB.
const maxSketchBytes = 1 << 30

// headerSize is the fixed-size prefix described in spec.md §6, excluding
// the host-owned 4-byte varlena/length header at offset 0 (that field
// belongs to the host's storage format, not this layout).
const headerSize = 28

// bucketSize is the on-wire size of one Bucket: uint32 total_count (4) +
// uint16 sample_count (2) + uint16 max_index (2) + uint32 max_hash (4) +
// bool is_sorted (1) + 3 bytes padding = 16.
const bucketSize = 16

// idSize is the on-wire size of one sample slot (spec.md §6: "int32 each").
const idSize = 4

// header mirrors the fixed fields of spec.md §3/§6. flags is reserved for
// format versioning and is always 0 in this implementation.
type header struct {
	flags      uint32
	numColumns uint16
	width      uint16
	height     uint16
	sampleSize uint16
	itemSize   uint16
	count      uint32
	seed       uint32
}

// Bucket is one Count-Min cell: a running count plus a bottom-k ID sample
// (spec.md §3). The padding field keeps the in-memory layout's size equal
// to the 16-byte wire format so ToBytes/FromBytes need no per-field
// repacking logic beyond what's written below.
type Bucket struct {
	TotalCount  uint32
	SampleCount uint16
	MaxIndex    uint16
	MaxHash     uint32
	IsSorted    bool
	_           [3]byte
}

// Sketch is the mutable-contents sketch value described in spec.md §3. The
// zero value is not usable; construct with New.
type Sketch struct {
	hdr     header
	buckets []Bucket
	samples []uint32 // len == numColumns*height*width*sampleSize
}

// sizeParams computes (D, W) from accuracy parameters per spec.md §4.1.
func sizeParams(epsilon, delta float64) (width, height int) {
	d := math.Ceil(math.Log(2 / delta))
	height = int(d)
	w := 1 + math.Ceil(math.E*math.Pow((epsilon+1)/epsilon, 1/d))
	width = int(w)
	return width, height
}

// sampleParams grows (B, b) from (0, 0) per spec.md §4.1 until b reaches 32
// bits or B reaches the 1024-item cap.
func sampleParams(delta float64) (sampleSize, itemSize int) {
	b, bits := 0, 0
	for bits < 32 && b < 1024 {
		b++
		bits = int(math.Ceil(math.Log(4 * math.Pow(float64(b), 2.5) / delta)))
	}
	if bits > 32 {
		bits = 32
	}
	return b, bits
}

// New allocates an empty Sketch sized from accuracy parameters (ε, δ) for
// numColumns attribute matrices (spec.md §4.1, §6).
func New(epsilon, delta float64, numColumns int) (*Sketch, error) {
	seed, err := randomSeed()
	if err != nil {
		return nil, fmt.Errorf("omnisketch: generating sketch seed: %w", err)
	}
	return newWithSeed(epsilon, delta, numColumns, seed)
}

// newWithSeed is New with an explicit seed, so tests can build sketches
// with disjoint, reproducible ID spaces without going through crypto/rand.
func newWithSeed(epsilon, delta float64, numColumns int, seed uint32) (*Sketch, error) {
	if epsilon <= 0 || epsilon > 1 {
		return nil, &ParameterError{Field: "epsilon", Value: epsilon, Msg: "must be in (0, 1]"}
	}
	if delta <= 0 || delta > 1 {
		return nil, &ParameterError{Field: "delta", Value: delta, Msg: "must be in (0, 1]"}
	}
	if numColumns <= 0 {
		return nil, &ParameterError{Field: "numColumns", Value: numColumns, Msg: "must be positive"}
	}
	width, height := sizeParams(epsilon, delta)
	if width <= 0 || height <= 0 {
		return nil, &ParameterError{Field: "epsilon,delta", Value: [2]float64{epsilon, delta}, Msg: "produced an impossible sizing"}
	}
	sampleSize, itemSize := sampleParams(delta)

	cells := uint64(numColumns) * uint64(height) * uint64(width)
	totalBytes := uint64(headerSize) + cells*uint64(bucketSize) + cells*uint64(sampleSize)*uint64(idSize)
	if totalBytes > maxSketchBytes {
		return nil, &ResourceLimit{RequestedBytes: totalBytes, LimitBytes: maxSketchBytes}
	}

	return &Sketch{
		hdr: header{
			flags:      0,
			numColumns: uint16(numColumns),
			width:      uint16(width),
			height:     uint16(height),
			sampleSize: uint16(sampleSize),
			itemSize:   uint16(itemSize),
			count:      0,
			seed:       seed,
		},
		buckets: make([]Bucket, cells),
		samples: make([]uint32, cells*uint64(sampleSize)),
	}, nil
}

// NumColumns, Width, Height, SampleSize and Count expose the read-only
// header fields a host needs for diagnostics or for sizing a query record.
func (s *Sketch) NumColumns() int { return int(s.hdr.numColumns) }
func (s *Sketch) Width() int      { return int(s.hdr.width) }
func (s *Sketch) Height() int     { return int(s.hdr.height) }
func (s *Sketch) SampleSize() int { return int(s.hdr.sampleSize) }
func (s *Sketch) ItemSize() int   { return int(s.hdr.itemSize) }
func (s *Sketch) Seed() uint32    { return s.hdr.seed }

// Count returns the total number of records ingested (spec.md §6).
func (s *Sketch) Count() int64 { return int64(s.hdr.count) }

// cellIndex is the linear index c·W·D + r·W + j described in spec.md §4.1.
func (s *Sketch) cellIndex(c, r, j int) int {
	return c*int(s.hdr.height)*int(s.hdr.width) + r*int(s.hdr.width) + j
}

// bucketAt returns a pointer to the live Bucket at (c, r, j).
func (s *Sketch) bucketAt(c, r, j int) *Bucket {
	return &s.buckets[s.cellIndex(c, r, j)]
}

// samplesAt returns the sample-slot sub-slice backing the Bucket at
// (c, r, j); len(result) == SampleSize() always, regardless of how many
// slots are actually occupied (see Bucket.SampleCount).
func (s *Sketch) samplesAt(c, r, j int) []uint32 {
	return s.samplesAtIndex(s.cellIndex(c, r, j))
}

// samplesAtIndex is samplesAt addressed directly by linear cell index,
// for callers that already iterate s.buckets by index.
func (s *Sketch) samplesAtIndex(idx int) []uint32 {
	b := int(s.hdr.sampleSize)
	return s.samples[idx*b : idx*b+b]
}

// sameShape reports whether two sketches share (C, D, W, B, b) — the
// precondition for Combine (spec.md §4.5).
func sameShape(a, b *Sketch) bool {
	return a.hdr.numColumns == b.hdr.numColumns &&
		a.hdr.width == b.hdr.width &&
		a.hdr.height == b.hdr.height &&
		a.hdr.sampleSize == b.hdr.sampleSize &&
		a.hdr.itemSize == b.hdr.itemSize
}

// ToBytes serializes the sketch into the compact layout of spec.md §6:
// a fixed header followed by the flat bucket array and the flat sample
// array, all little-endian. The host-owned 4-byte varlena/length prefix is
// not written here — callers that need it (e.g. a Postgres varlena) prepend
// it themselves once they know this function's output length.
func (s *Sketch) ToBytes() []byte {
	cells := len(s.buckets)
	out := make([]byte, headerSize+cells*bucketSize+len(s.samples)*idSize)

	binary.LittleEndian.PutUint32(out[0:4], s.hdr.flags)
	binary.LittleEndian.PutUint16(out[4:6], s.hdr.numColumns)
	binary.LittleEndian.PutUint16(out[6:8], s.hdr.width)
	binary.LittleEndian.PutUint16(out[8:10], s.hdr.height)
	binary.LittleEndian.PutUint16(out[10:12], s.hdr.sampleSize)
	binary.LittleEndian.PutUint16(out[12:14], s.hdr.itemSize)
	// out[14:16] is the reserved padding field.
	binary.LittleEndian.PutUint32(out[16:20], s.hdr.count)
	binary.LittleEndian.PutUint32(out[20:24], s.hdr.seed)
	// out[24:28] is padding to the bucket array's alignment.

	off := headerSize
	for i := range s.buckets {
		b := &s.buckets[i]
		binary.LittleEndian.PutUint32(out[off:off+4], b.TotalCount)
		binary.LittleEndian.PutUint16(out[off+4:off+6], b.SampleCount)
		binary.LittleEndian.PutUint16(out[off+6:off+8], b.MaxIndex)
		binary.LittleEndian.PutUint32(out[off+8:off+12], b.MaxHash)
		if b.IsSorted {
			out[off+12] = 1
		}
		off += bucketSize
	}
	for _, id := range s.samples {
		binary.LittleEndian.PutUint32(out[off:off+4], id)
		off += idSize
	}
	return out
}

// FromBytes parses the layout ToBytes produces. It does not validate the
// invariants of spec.md §3 beyond what's needed to size the slices safely;
// a caller that distrusts its source should run a separate integrity pass.
func FromBytes(data []byte) (*Sketch, error) {
	if len(data) < headerSize {
		return nil, &ShapeMismatch{Msg: "buffer shorter than the sketch header"}
	}
	h := header{
		flags:      binary.LittleEndian.Uint32(data[0:4]),
		numColumns: binary.LittleEndian.Uint16(data[4:6]),
		width:      binary.LittleEndian.Uint16(data[6:8]),
		height:     binary.LittleEndian.Uint16(data[8:10]),
		sampleSize: binary.LittleEndian.Uint16(data[10:12]),
		itemSize:   binary.LittleEndian.Uint16(data[12:14]),
		count:      binary.LittleEndian.Uint32(data[16:20]),
		seed:       binary.LittleEndian.Uint32(data[20:24]),
	}
	cells := int(h.numColumns) * int(h.height) * int(h.width)
	wantLen := headerSize + cells*bucketSize + cells*int(h.sampleSize)*idSize
	if len(data) < wantLen {
		return nil, &ShapeMismatch{Msg: fmt.Sprintf("buffer too short: have %d bytes, need %d", len(data), wantLen)}
	}

	s := &Sketch{
		hdr:     h,
		buckets: make([]Bucket, cells),
		samples: make([]uint32, cells*int(h.sampleSize)),
	}
	off := headerSize
	for i := range s.buckets {
		b := &s.buckets[i]
		b.TotalCount = binary.LittleEndian.Uint32(data[off : off+4])
		b.SampleCount = binary.LittleEndian.Uint16(data[off+4 : off+6])
		b.MaxIndex = binary.LittleEndian.Uint16(data[off+6 : off+8])
		b.MaxHash = binary.LittleEndian.Uint32(data[off+8 : off+12])
		b.IsSorted = data[off+12] != 0
		off += bucketSize
	}
	for i := range s.samples {
		s.samples[i] = binary.LittleEndian.Uint32(data[off : off+4])
		off += idSize
	}
	return s, nil
}

// Clone returns a deep, independent copy of the sketch.
func (s *Sketch) Clone() *Sketch {
	out := &Sketch{
		hdr:     s.hdr,
		buckets: make([]Bucket, len(s.buckets)),
		samples: make([]uint32, len(s.samples)),
	}
	copy(out.buckets, s.buckets)
	copy(out.samples, s.samples)
	return out
}
