package ecg

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/odyssey-sync/odyssey/types"
)

// nodeInfo is the bookkeeping kept per header in the DAG.
type nodeInfo struct {
	depth  uint64
	header Header
}

// DAG is the causal DAG of headers for a single store: a directed
// acyclic graph with edges running parent -> child. It is owned by a
// single StoreHandler; every method takes the DAG's own lock, so
// individual calls may be made from several goroutines.
type DAG struct {
	mu sync.RWMutex

	nodes    map[types.HeaderId]*nodeInfo
	children map[types.HeaderId][]types.HeaderId
	roots    mapset.Set[types.HeaderId]
	tips     mapset.Set[types.HeaderId]
}

// New creates an empty DAG, as happens when a store is first created or joined.
func New() *DAG {
	return &DAG{
		nodes:    make(map[types.HeaderId]*nodeInfo),
		children: make(map[types.HeaderId][]types.HeaderId),
		roots:    mapset.NewSet[types.HeaderId](),
		tips:     mapset.NewSet[types.HeaderId](),
	}
}

// Tips returns the set of header ids that are not a parent of any known
// header.
func (d *DAG) Tips() []types.HeaderId {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tips.ToSlice()
}

// TipCount returns the number of current tips.
func (d *DAG) TipCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tips.Cardinality()
}

// Roots returns the set of header ids whose parent set is empty.
func (d *DAG) Roots() []types.HeaderId {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roots.ToSlice()
}

// Contains reports whether h is present in the DAG.
func (d *DAG) Contains(h types.HeaderId) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.nodes[h]
	return ok
}

// GetHeader returns the header stored for h, if any.
func (d *DAG) GetHeader(h types.HeaderId) (Header, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[h]
	if !ok {
		return Header{}, false
	}
	return n.header, true
}

// GetDepth returns the depth of h, if present: 1 for a root-attached
// header, otherwise 1 + the minimum depth of its parents.
func (d *DAG) GetDepth(h types.HeaderId) (uint64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[h]
	if !ok {
		return 0, false
	}
	return n.depth, true
}

// Parents returns the parent ids of h, if present. An empty (nil) slice
// with ok == true means h is root-attached.
func (d *DAG) Parents(h types.HeaderId) ([]types.HeaderId, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[h]
	if !ok {
		return nil, false
	}
	return append([]types.HeaderId(nil), n.header.Parents...), true
}

// IdDepth pairs a header id with its depth, used by probe/send queues.
type IdDepth struct {
	Id    types.HeaderId
	Depth uint64
}

// ParentsWithDepth returns h's parents paired with their depths.
func (d *DAG) ParentsWithDepth(h types.HeaderId) ([]IdDepth, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[h]
	if !ok {
		return nil, false
	}
	out := make([]IdDepth, 0, len(n.header.Parents))
	for _, p := range n.header.Parents {
		pn, ok := d.nodes[p]
		if !ok {
			// Invariant I3 guarantees every stored parent exists; this would be
			// a programming error, not a runtime condition to tolerate.
			panic("ecg: parent missing from DAG, invariant I3 violated")
		}
		out = append(out, IdDepth{Id: p, Depth: pn.depth})
	}
	return out, true
}

// Children returns the ids of headers that name h as a parent.
func (d *DAG) Children(h types.HeaderId) ([]types.HeaderId, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.nodes[h]; !ok {
		return nil, false
	}
	return append([]types.HeaderId(nil), d.children[h]...), true
}

// ChildrenWithDepth returns h's children paired with their depths.
func (d *DAG) ChildrenWithDepth(h types.HeaderId) ([]IdDepth, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.nodes[h]; !ok {
		return nil, false
	}
	out := make([]IdDepth, 0, len(d.children[h]))
	for _, c := range d.children[h] {
		cn, ok := d.nodes[c]
		if !ok {
			panic("ecg: child missing from DAG, invariant I3 violated")
		}
		out = append(out, IdDepth{Id: c, Depth: cn.depth})
	}
	return out, true
}

// Insert validates and inserts header into the DAG, returning true iff it
// was accepted. Insertion policy:
//  1. Recompute the HeaderId and verify it against id; reject on mismatch.
//  2. Reject if id is already present (idempotent no-op).
//  3. Root-attached (no parents): add to roots, depth = 1.
//  4. Otherwise require every parent to already be present; reject
//     otherwise. Depth = 1 + min(parent depths).
//  5. Remove from tips every parent currently a tip; add id to tips.
func (d *DAG) Insert(id types.HeaderId, header Header) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !header.Validate(id) {
		return false
	}
	if _, exists := d.nodes[id]; exists {
		return false
	}

	var depth uint64
	if header.IsRoot() {
		depth = 1
	} else {
		depth = ^uint64(0) // max uint64, reduced below
		for _, p := range header.Parents {
			pn, ok := d.nodes[p]
			if !ok {
				return false
			}
			if pn.depth < depth {
				depth = pn.depth
			}
		}
		depth++
	}

	if header.IsRoot() {
		d.roots.Add(id)
	}
	for _, p := range header.Parents {
		d.tips.Remove(p)
		d.children[p] = append(d.children[p], id)
	}
	d.tips.Add(id)

	d.nodes[id] = &nodeInfo{depth: depth, header: header}
	return true
}

// Equal reports whether a and b contain the same (HeaderId, Header)
// pairs, resolving the canonical-comparator open question left
// unimplemented in the reference.
func Equal(a, b *DAG) bool {
	a.mu.RLock()
	b.mu.RLock()
	defer a.mu.RUnlock()
	defer b.mu.RUnlock()

	if len(a.nodes) != len(b.nodes) {
		return false
	}
	for id, an := range a.nodes {
		bn, ok := b.nodes[id]
		if !ok {
			return false
		}
		if an.header.Store != bn.header.Store || an.header.BodyRef != bn.header.BodyRef {
			return false
		}
		if len(an.header.Parents) != len(bn.header.Parents) {
			return false
		}
		aParents := mapset.NewSet[types.HeaderId](an.header.Parents...)
		bParents := mapset.NewSet[types.HeaderId](bn.header.Parents...)
		if !aParents.Equal(bParents) {
			return false
		}
	}
	return true
}
