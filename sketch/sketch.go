package sketch

import "fmt"

// State names the three phases of spec.md §4.8. It is informative only —
// the core does not gate operations on it; a host that wants to enforce
// "Building accepts add/combine, Finalized accepts estimate/combine" reads
// this value and decides for itself.
type State int

const (
	// StateEmpty: no records ingested yet.
	StateEmpty State = iota
	// StateBuilding: at least one non-empty cell is unsorted.
	StateBuilding
	// StateFinalized: every non-empty cell is sorted.
	StateFinalized
)

func (st State) String() string {
	switch st {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(st))
	}
}

// State reports where the sketch sits in the Empty → Building → Finalized
// lifecycle of spec.md §4.8.
func (s *Sketch) State() State {
	if s.hdr.count == 0 {
		return StateEmpty
	}
	for i := range s.buckets {
		b := &s.buckets[i]
		if b.SampleCount > 0 && !b.IsSorted {
			return StateBuilding
		}
	}
	return StateFinalized
}

// String renders a short human-readable summary — useful for logs, not a
// wire format.
func (s *Sketch) String() string {
	return fmt.Sprintf("Sketch{columns=%d width=%d height=%d sampleSize=%d count=%d state=%s}",
		s.hdr.numColumns, s.hdr.width, s.hdr.height, s.hdr.sampleSize, s.hdr.count, s.State())
}
