package sketch

// Combine merges two structurally compatible sketches into a new one,
// preserving the bottom-k property of every cell (spec.md §4.5). Neither
// input is mutated. If one side is nil the other is returned, cloned; if
// both are nil, Combine returns (nil, nil).
func Combine(a, b *Sketch) (*Sketch, error) {
	if a == nil && b == nil {
		return nil, nil
	}
	if a == nil {
		return b.Clone(), nil
	}
	if b == nil {
		return a.Clone(), nil
	}
	if !sameShape(a, b) {
		return nil, &ShapeMismatch{Msg: "combine requires identical (numColumns, width, height, sampleSize, itemSize)"}
	}

	out := &Sketch{
		hdr:     a.hdr,
		buckets: make([]Bucket, len(a.buckets)),
		samples: make([]uint32, len(a.samples)),
	}
	out.hdr.count = a.hdr.count + b.hdr.count
	out.hdr.seed = a.hdr.seed // arbitrary but deterministic: keep a's seed

	sampleSize := int(a.hdr.sampleSize)
	for idx := range a.buckets {
		ab := &a.buckets[idx]
		bb := &b.buckets[idx]
		aIDs := sortedIDs(ab, a.samples[idx*sampleSize:idx*sampleSize+sampleSize])
		bIDs := sortedIDs(bb, b.samples[idx*sampleSize:idx*sampleSize+sampleSize])

		merged, err := mergeBottomK(aIDs, bIDs, sampleSize)
		if err != nil {
			return nil, err
		}

		ob := &out.buckets[idx]
		ob.TotalCount = ab.TotalCount + bb.TotalCount
		ob.SampleCount = uint16(len(merged))
		ob.IsSorted = true
		if len(merged) > 0 {
			ob.MaxIndex = uint16(len(merged) - 1)
			ob.MaxHash = priorityOf(merged[ob.MaxIndex]).hash
		}
		copy(out.samples[idx*sampleSize:idx*sampleSize+sampleSize], merged)
	}
	return out, nil
}

// mergeBottomK two-pointer merges two (H_s, id)-sorted ID lists, keeping
// the B smallest-priority IDs (spec.md §4.5 "Merge algorithm"). An ID
// appearing in both inputs is a duplicate-ID-across-sketches violation
// (spec.md §9 Open Question 2); the spec mandates at-most-once emission,
// so the duplicate is folded into a single output here, and — in debug
// builds only — reported as an InvariantViolation so it isn't masked
// silently during development (see dupcheck_debug.go / dupcheck_release.go).
func mergeBottomK(a, b []uint32, capacity int) ([]uint32, error) {
	out := make([]uint32, 0, min(capacity, len(a)+len(b)))
	i, j := 0, 0
	for len(out) < capacity && (i < len(a) || j < len(b)) {
		switch {
		case i >= len(a):
			out = append(out, b[j])
			j++
		case j >= len(b):
			out = append(out, a[i])
			i++
		case a[i] == b[j]:
			if err := onDuplicateID(a[i]); err != nil {
				return nil, err
			}
			out = append(out, a[i])
			i++
			j++
		case priorityOf(a[i]).less(priorityOf(b[j])):
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	return out, nil
}
