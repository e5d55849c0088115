package ecgsync

import (
	"container/heap"

	"github.com/odyssey-sync/odyssey/types"
)

// probeItem is a candidate in the ancestor-probing frontier: (is_tip,
// depth, id, distance), ordered as a max-heap over the first three
// fields so the highest tip/depth candidate is always popped first.
type probeItem struct {
	isTip    bool
	depth    uint64
	id       types.HeaderId
	distance uint64
}

// idGreater reports whether a sorts after b under HeaderId's total order,
// used to break ties deterministically in the max-heaps below.
func idGreater(a, b types.HeaderId) bool { return a != b && !a.Less(b) }

func probeGreater(a, b probeItem) bool {
	if a.isTip != b.isTip {
		return a.isTip
	}
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	return idGreater(a.id, b.id)
}

type probeHeap []probeItem

func (h probeHeap) Len() int            { return len(h) }
func (h probeHeap) Less(i, j int) bool  { return probeGreater(h[i], h[j]) }
func (h probeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *probeHeap) Push(x interface{}) { *h = append(*h, x.(probeItem)) }
func (h *probeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// sendItem is a candidate queued for delivery: (depth, id), ordered as a
// max-heap over depth, so the deepest candidate is popped first. Parents
// reach the remote before their children because PrepareHeaders defers
// any header whose parents are not yet known or delivered, not because
// of this ordering.
type sendItem struct {
	depth uint64
	id    types.HeaderId
}

func sendGreater(a, b sendItem) bool {
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	return idGreater(a.id, b.id)
}

type sendHeap []sendItem

func (h sendHeap) Len() int            { return len(h) }
func (h sendHeap) Less(i, j int) bool  { return sendGreater(h[i], h[j]) }
func (h sendHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *sendHeap) Push(x interface{}) { *h = append(*h, x.(sendItem)) }
func (h *sendHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var (
	_ = heap.Interface(&probeHeap{})
	_ = heap.Interface(&sendHeap{})
)
