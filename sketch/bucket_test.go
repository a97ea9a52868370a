package sketch

import "testing"

func TestBucketInsertFillsBeforeEvicting(t *testing.T) {
	var b Bucket
	samples := make([]uint32, 4)
	for _, id := range []uint32{10, 20, 30, 40} {
		b.insert(id, samples)
	}
	if b.SampleCount != 4 {
		t.Fatalf("SampleCount: got %d, want 4", b.SampleCount)
	}
	if b.TotalCount != 4 {
		t.Fatalf("TotalCount: got %d, want 4", b.TotalCount)
	}
	got := b.currentMax(samples)
	want := priorityOf(samples[b.MaxIndex])
	if got != want {
		t.Fatalf("currentMax inconsistent with MaxIndex: got %+v, want %+v", got, want)
	}
}

func TestBucketInsertEvictsHigherPriority(t *testing.T) {
	var b Bucket
	capacity := 3
	samples := make([]uint32, capacity)

	// Flood a much larger ID universe through a small capacity and confirm
	// the retained sample is always exactly the capacity lowest-priority IDs
	// seen so far, verified by brute-force recomputation every step.
	seen := []uint32{}
	for id := uint32(0); id < 200; id++ {
		b.insert(id, samples)
		seen = append(seen, id)

		occupied := append([]uint32{}, samples[:b.SampleCount]...)
		if int(b.SampleCount) != min(capacity, len(seen)) {
			t.Fatalf("after %d inserts: SampleCount=%d, want %d", len(seen), b.SampleCount, min(capacity, len(seen)))
		}

		want := lowestPriority(seen, capacity)
		if !sameIDSet(occupied, want) {
			t.Fatalf("after inserting id=%d: retained set %v, want bottom-%d set %v", id, occupied, capacity, want)
		}

		maxGot := b.currentMax(samples)
		maxWant := highestPriorityIn(occupied)
		if maxGot != maxWant {
			t.Fatalf("after inserting id=%d: currentMax=%+v, want %+v", id, maxGot, maxWant)
		}
	}
}

func TestBucketRecomputeMaxAfterOverwrite(t *testing.T) {
	var b Bucket
	samples := make([]uint32, 2)
	b.insert(1, samples)
	b.insert(2, samples)
	before := b.currentMax(samples)

	// Force an overwrite by inserting IDs until one with lower priority than
	// the tracked max appears; recomputeMax must then reflect the new set.
	for id := uint32(3); id < 10000; id++ {
		if priorityOf(id).less(before) {
			b.insert(id, samples)
			break
		}
	}
	occupied := samples[:b.SampleCount]
	want := highestPriorityIn(occupied)
	if b.currentMax(samples) != want {
		t.Fatalf("currentMax after overwrite: got %+v, want %+v", b.currentMax(samples), want)
	}
}

func lowestPriority(ids []uint32, k int) []uint32 {
	sorted := append([]uint32{}, ids...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if priorityOf(sorted[j]).less(priorityOf(sorted[i])) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

func highestPriorityIn(ids []uint32) priority {
	var maxP priority
	for i, id := range ids {
		p := priorityOf(id)
		if i == 0 || maxP.less(p) {
			maxP = p
		}
	}
	return maxP
}

func sameIDSet(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uint32]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
