package sketch

// Add ingests one record's pre-hashed column values (spec.md §4.4). The
// host is responsible for hashing each column value before calling Add —
// including the NULL convention: NULL columns must arrive as the sentinel
// hash 0 (spec.md §4.4, §9 Open Question 1 — the core does not special-case
// it further than accepting whatever hash the host supplies).
func (s *Sketch) Add(columnHashes []uint32) error {
	if len(columnHashes) != int(s.hdr.numColumns) {
		return &ShapeMismatch{Msg: "record has a different column count than the sketch"}
	}

	s.hdr.count++
	id := deriveRecordID(s.hdr.count, s.hdr.seed)

	height := int(s.hdr.height)
	width := int(s.hdr.width)
	for c, x := range columnHashes {
		for r := 0; r < height; r++ {
			j := int(rowHash(x, r)) % width
			bucket := s.bucketAt(c, r, j)
			bucket.insert(id, s.samplesAt(c, r, j))
		}
	}
	return nil
}
