package sketch

import "sort"

// sortedIDs returns the cell's occupied IDs ordered by (H_s, id) ascending.
// If the cell already reports IsSorted, the existing order is reused
// without a fresh sort (spec.md §4.5: "reusing is_sorted when true").
func sortedIDs(b *Bucket, samples []uint32) []uint32 {
	ids := make([]uint32, b.SampleCount)
	copy(ids, samples[:b.SampleCount])
	if !b.IsSorted {
		sort.Slice(ids, func(i, j int) bool {
			return priorityOf(ids[i]).less(priorityOf(ids[j]))
		})
	}
	return ids
}

// canonicalizeCell sorts a cell's occupied IDs in place by (H_s, id) and
// marks it sorted, establishing the invariant spec.md §3 item 4 and §4.6
// require before estimation.
func canonicalizeCell(b *Bucket, samples []uint32) {
	if b.SampleCount < 2 || b.IsSorted {
		if b.SampleCount > 0 {
			b.IsSorted = true
		}
		return
	}
	occupied := samples[:b.SampleCount]
	sort.Slice(occupied, func(i, j int) bool {
		return priorityOf(occupied[i]).less(priorityOf(occupied[j]))
	})
	b.MaxIndex = b.SampleCount - 1
	b.MaxHash = priorityOf(occupied[b.MaxIndex]).hash
	b.IsSorted = true
}
