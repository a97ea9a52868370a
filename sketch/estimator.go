package sketch

// Estimate returns the scaled record count matching the conjunctive
// equality predicate described by columnHashes (spec.md §4.7). It requires
// every visited cell with two or more samples to be sorted — call Finalize
// first, or Estimate returns an InvariantViolation the moment it finds one
// that isn't.
//
// max_count is accumulated across every column and row visited, not just
// the current column's rows (spec.md §9 Open Question 4 — this matches the
// paper's intended analysis, not a per-column maximum, despite how easy it
// would be to "fix" this back the other way).
func (s *Sketch) Estimate(columnHashes []uint32) (int64, error) {
	if len(columnHashes) != int(s.hdr.numColumns) {
		return 0, &ShapeMismatch{Msg: "query record has a different column count than the sketch"}
	}
	if s.hdr.count == 0 {
		return 0, nil
	}

	height := int(s.hdr.height)
	width := int(s.hdr.width)

	var maxCount uint32
	var candidate map[uint32]struct{}
	haveCandidate := false

	for c, x := range columnHashes {
		for r := 0; r < height; r++ {
			j := int(rowHash(x, r)) % width
			b := s.bucketAt(c, r, j)
			if b.TotalCount > maxCount {
				maxCount = b.TotalCount
			}
			if b.SampleCount >= 2 && !b.IsSorted {
				return 0, &InvariantViolation{Msg: "unsorted sample visited by estimate; call Finalize first"}
			}

			samples := s.samplesAt(c, r, j)[:b.SampleCount]
			if !haveCandidate {
				candidate = make(map[uint32]struct{}, len(samples))
				for _, id := range samples {
					candidate[id] = struct{}{}
				}
				haveCandidate = true
				continue
			}
			if len(candidate) == 0 {
				continue // already empty; keep walking only for max_count
			}
			cellSet := make(map[uint32]struct{}, len(samples))
			for _, id := range samples {
				cellSet[id] = struct{}{}
			}
			for id := range candidate {
				if _, ok := cellSet[id]; !ok {
					delete(candidate, id)
				}
			}
		}
	}

	if maxCount == 0 || len(candidate) == 0 {
		return 0, nil
	}
	estimate := uint64(maxCount) * uint64(len(candidate)) / uint64(s.hdr.sampleSize)
	return int64(estimate), nil
}
