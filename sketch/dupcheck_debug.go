//go:build debug

package sketch

import "fmt"

// onDuplicateID is the debug-build variant: duplicate-ID detection across
// combined sketches is optional per spec.md §9 Open Question 2, opted into
// here via the "debug" build tag so the hot merge path stays allocation-
// and branch-light in production builds (dupcheck_release.go).
func onDuplicateID(id uint32) error {
	return &InvariantViolation{Msg: fmt.Sprintf("id %d present in both sketches being combined", id)}
}
