package sketch

import (
	"sort"
	"testing"
)

func TestFinalizeSortsEveryCell(t *testing.T) {
	s, err := newWithSeed(0.2, 0.2, 1, 1234)
	if err != nil {
		t.Fatalf("newWithSeed: %v", err)
	}
	for i := uint32(0); i < 300; i++ {
		if err := s.Add([]uint32{i}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	s.Finalize()

	for idx := range s.buckets {
		b := &s.buckets[idx]
		if b.SampleCount == 0 {
			continue
		}
		if !b.IsSorted {
			t.Fatalf("cell %d: IsSorted false after Finalize", idx)
		}
		sampleSize := s.SampleSize()
		samples := s.samples[idx*sampleSize : idx*sampleSize+sampleSize][:b.SampleCount]
		if !sort.SliceIsSorted(samples, func(i, j int) bool {
			return priorityOf(samples[i]).less(priorityOf(samples[j]))
		}) {
			t.Fatalf("cell %d: samples %v not sorted by (H_s, id)", idx, samples)
		}
		if b.SampleCount > 0 {
			wantMaxIdx := int(b.SampleCount) - 1
			if int(b.MaxIndex) != wantMaxIdx {
				t.Fatalf("cell %d: MaxIndex=%d after sort, want %d", idx, b.MaxIndex, wantMaxIdx)
			}
		}
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	s, err := newWithSeed(0.2, 0.2, 1, 55)
	if err != nil {
		t.Fatalf("newWithSeed: %v", err)
	}
	for i := uint32(0); i < 100; i++ {
		if err := s.Add([]uint32{i}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	s.Finalize()
	first := s.ToBytes()
	s.Finalize()
	second := s.ToBytes()
	if len(first) != len(second) {
		t.Fatalf("byte length changed across repeated Finalize calls: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("byte %d differs across repeated Finalize calls: %d vs %d", i, first[i], second[i])
		}
	}
}
