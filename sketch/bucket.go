package sketch

// currentMax returns the priority of the bucket's currently tracked
// maximum-priority sample. Only meaningful when SampleCount > 0.
func (b *Bucket) currentMax(samples []uint32) priority {
	return priority{hash: b.MaxHash, id: samples[b.MaxIndex]}
}

// insert applies the bottom-k reservoir update of spec.md §4.3 for one
// record ID landing in this cell. samples is the cell's sample-slot
// sub-slice (len == sketch's SampleSize()).
func (b *Bucket) insert(id uint32, samples []uint32) {
	b.TotalCount++
	p := priorityOf(id)
	capacity := uint16(len(samples))

	switch {
	case b.SampleCount < capacity:
		idx := b.SampleCount
		samples[idx] = id
		b.SampleCount++
		if b.SampleCount == 1 || b.currentMax(samples).less(p) {
			b.MaxIndex = idx
			b.MaxHash = p.hash
		}
		b.IsSorted = false

	case p.less(b.currentMax(samples)):
		samples[b.MaxIndex] = id
		b.recomputeMax(samples)
		b.IsSorted = false

	default:
		// p is >= the current max under (H_s, id): the reservoir already
		// holds a set of this size with strictly smaller-or-equal priority.
	}
}

// recomputeMax rescans the occupied sample slots to find the new largest
// priority after an overwrite (spec.md §4.3: "scan the cell to recompute
// max_hash and max_index").
func (b *Bucket) recomputeMax(samples []uint32) {
	var maxP priority
	var maxIdx uint16
	for i := uint16(0); i < b.SampleCount; i++ {
		p := priorityOf(samples[i])
		if i == 0 || maxP.less(p) {
			maxP = p
			maxIdx = i
		}
	}
	b.MaxIndex = maxIdx
	b.MaxHash = maxP.hash
}
