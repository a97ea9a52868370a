package sketch

// Finalize brings every cell's sample into canonical (H_s, id) sorted
// order (spec.md §4.6) and marks every non-empty cell IsSorted. It is
// idempotent: a cell already marked IsSorted is left untouched. The
// estimator requires this to have run since it raises an
// InvariantViolation on any unsorted cell with two or more samples it
// visits.
func (s *Sketch) Finalize() {
	sampleSize := int(s.hdr.sampleSize)
	for idx := range s.buckets {
		b := &s.buckets[idx]
		if b.SampleCount == 0 || b.IsSorted {
			continue
		}
		samples := s.samples[idx*sampleSize : idx*sampleSize+sampleSize]
		canonicalizeCell(b, samples)
	}
}
