// Package sketch implements the core of OmniSketch, the multi-dimensional
// streaming sketch of Punter, Papapetrou & Garofalakis (VLDB 2023): a
// per-attribute Count-Min matrix whose cells carry a bottom-k sample of
// record IDs alongside the usual counter, so that a conjunctive equality
// predicate across several attributes can be estimated by intersecting
// those samples and scaling by the tightest counted bucket.
//
// The package is a pure, in-memory data structure: no I/O, no logging, no
// background goroutines, no locks. Callers own synchronization: Add and
// Finalize need exclusive access to a Sketch, and readers (Estimate,
// ToBytes, Combine's inputs) must not run alongside them. Column
// values and record IDs are accepted pre-hashed to 32 bits; type-specific
// hashing, tuple deconstruction, and persistence are host concerns (see
// internal/hostdispatch, internal/store for a demonstration host).
package sketch
