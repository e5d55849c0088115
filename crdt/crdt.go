// Package crdt defines the external CRDT contract that a StoreHandler
// folds operations through, plus a reference TwoPMap implementation
// (grounded on odyssey-crdt/src/map/twopmap.rs from the original
// implementation this protocol was distilled from).
package crdt

import "github.com/odyssey-sync/odyssey/types"

// CausalState exposes whatever ordering information a CRDT's Apply needs
// to resolve concurrent operations deterministically. Odyssey itself
// never interprets this; it is opaque plumbing threaded from the store
// through to the CRDT.
type CausalState interface {
	// Depth returns the causal depth (ECG header depth) at which id was
	// delivered, or false if id is unknown to this state.
	Depth(id types.HeaderId) (uint64, bool)
}

// CRDT state is folded through an Apply method once per operation
// delivered by the ECG, in an order each replica may observe
// differently. Apply must be a pure, deterministic function of its
// arguments: any two replicas that have applied the same set of
// (opTime, op) pairs converge to the same resulting state regardless of
// delivery order.
//
// There is deliberately no CRDT interface type here: the Rust reference
// expresses the contract as a trait with an associated Self return
// (fn apply(self, ...) -> Self), which Go generics cannot encode across
// instantiations. store.Handler is generic over a state type and folds
// operations through a caller-supplied store.ApplyFunc rather than
// through a method of the state; this comment documents the contract
// every such fold must satisfy.
