package crdt

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/odyssey-sync/odyssey/types"
)

// TwoPMap is a two-phase map: once a key is deleted it can never be
// reinserted, tracked via a tombstone set (grounded on
// odyssey-crdt/src/map/twopmap.rs's TwoPMap). Keys are types.HeaderId,
// matching the reference's constraint that the map's key type equals
// its value CRDT's Time type: every entry is keyed by the causal time
// of the operation that inserted it. V is the per-key CRDT value type.
type TwoPMap[V any] struct {
	entries    map[types.HeaderId]V
	tombstones mapset.Set[types.HeaderId]
}

// NewTwoPMap creates an empty two-phase map.
func NewTwoPMap[V any]() *TwoPMap[V] {
	return &TwoPMap[V]{
		entries:    make(map[types.HeaderId]V),
		tombstones: mapset.NewSet[types.HeaderId](),
	}
}

// Get returns the current value stored under key, if any.
func (m *TwoPMap[V]) Get(key types.HeaderId) (V, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Len returns the number of live (non-tombstoned) entries.
func (m *TwoPMap[V]) Len() int { return len(m.entries) }

// Range calls f for every live entry; iteration order is unspecified.
func (m *TwoPMap[V]) Range(f func(key types.HeaderId, value V)) {
	for k, v := range m.entries {
		f(k, v)
	}
}

// TwoPMapOpKind discriminates the three operations a TwoPMap accepts,
// mirroring the Rust TwoPMapOp enum (Insert/Apply/Delete).
type TwoPMapOpKind int

const (
	OpInsert TwoPMapOpKind = iota
	OpApply
	OpDelete
)

// TwoPMapOp is a single operation applied to a TwoPMap. Insert creates a
// new entry keyed by the operation's own opTime; Apply folds a
// value-level operation into an existing entry's current value via
// apply; Delete tombstones a key so it can never be reinserted.
type TwoPMapOp[V any] struct {
	Kind  TwoPMapOpKind
	Key   types.HeaderId // used by Apply and Delete; ignored by Insert
	Value V              // used by Insert

	// Apply folds a value-level delta into the current value of the
	// entry named by Key. It is invoked only for OpApply operations; the
	// caller supplies the value-CRDT's own apply semantics since V is
	// not constrained to implement CRDT itself (it may be a plain value
	// type with no sub-operations, e.g. a LWW register).
	Apply func(current V, st CausalState, opTime types.HeaderId) V
}

// Insert builds an operation that inserts value under the key equal to
// the operation's own causal time, matching TwoPMap::insert in the
// reference implementation.
func Insert[V any](value V) TwoPMapOp[V] {
	return TwoPMapOp[V]{Kind: OpInsert, Value: value}
}

// Delete builds an operation that tombstones key.
func Delete[V any](key types.HeaderId) TwoPMapOp[V] {
	return TwoPMapOp[V]{Kind: OpDelete, Key: key}
}

// ApplyTo builds an operation that folds apply into the current value of key.
func ApplyTo[V any](key types.HeaderId, apply func(current V, st CausalState, opTime types.HeaderId) V) TwoPMapOp[V] {
	return TwoPMapOp[V]{Kind: OpApply, Key: key, Apply: apply}
}

// Apply folds op into m, returning the resulting map. A key already in
// the tombstone set silently discards any operation addressed to it
// (delete-wins semantics): this is what makes TwoPMap commutative
// regardless of the order concurrent Insert/Apply/Delete operations for
// the same key are delivered in.
//
// opTime also serves as the key under which a fresh Insert is stored,
// mirroring the reference's use of the operation's own causal time as
// the map key for inserts.
func (m *TwoPMap[V]) Apply(st CausalState, opTime types.HeaderId, op TwoPMapOp[V]) *TwoPMap[V] {
	key := op.Key
	if op.Kind == OpInsert {
		key = opTime
	}
	if m.tombstones.Contains(key) {
		return m
	}

	switch op.Kind {
	case OpInsert:
		if _, exists := m.entries[key]; exists {
			// Invariant violated: the causal time identifying this insert
			// was already used as a key. Every HeaderId is unique
			// (types.HeaderId invariant I_ID), so this would indicate the
			// same operation was applied twice.
			return m
		}
		m.entries[key] = op.Value
	case OpApply:
		current, exists := m.entries[key]
		if !exists {
			return m
		}
		m.entries[key] = op.Apply(current, st, opTime)
	case OpDelete:
		delete(m.entries, key)
		m.tombstones.Add(key)
	}
	return m
}
