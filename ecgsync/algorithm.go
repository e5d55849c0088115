package ecgsync

import (
	"container/heap"

	"github.com/odyssey-sync/odyssey/ecg"
	"github.com/odyssey-sync/odyssey/types"
)

// isPowerOfTwo reports whether x is a power of two, inclusive of 0.
func isPowerOfTwo(x uint64) bool {
	return x&(x-1) == 0
}

// markAsKnown closes s.TheirKnown under ancestors of id: a BFS over
// parents that stops walking a branch the first time an id is already
// present, since the set is closed under ancestors by induction. This is
// an iterative worklist rather than the reference's recursion, since
// deep DAGs would otherwise blow the stack.
func markAsKnown(dag *ecg.DAG, known map[types.HeaderId]struct{}, theirKnownAdd func(types.HeaderId), id types.HeaderId) {
	queue := []types.HeaderId{id}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		if _, already := known[h]; already {
			continue
		}
		known[h] = struct{}{}
		theirKnownAdd(h)

		parents, ok := dag.Parents(h)
		if !ok {
			// The DAG guarantees every stored header's parents are present
			// (invariant I3); a missing entry here means h was never
			// actually in the DAG, which callers must not do.
			continue
		}
		queue = append(queue, parents...)
	}
}

// MarkAsKnown records that the remote is known to possess id, closing
// the known-set under ancestors.
func (s *State) MarkAsKnown(dag *ecg.DAG, id types.HeaderId) {
	seen := make(map[types.HeaderId]struct{}, s.TheirKnown.Cardinality())
	s.TheirKnown.Each(func(h types.HeaderId) bool {
		seen[h] = struct{}{}
		return false
	})
	markAsKnown(dag, seen, func(h types.HeaderId) { s.TheirKnown.Add(h) }, id)
}

// PrepareHaves refills the outgoing have list via exponential ancestor
// probing: pop the highest (is_tip, depth) candidate
// from the probe frontier, skip it if the remote is already proven to
// have it, otherwise append it to haves whenever its probe distance is a
// power of two or it is a child of the synthetic root (depth == 1),
// always re-enqueueing its parents one hop further out. Continues until
// MaxHaveHeaders entries are proposed or the frontier is exhausted.
func (s *State) PrepareHaves(dag *ecg.DAG) []types.HeaderId {
	haves := make([]types.HeaderId, 0, MaxHaveHeaders)

	for len(haves) < MaxHaveHeaders && s.probeQueue.Len() > 0 {
		item := heap.Pop(&s.probeQueue).(probeItem)

		if s.TheirKnown.Contains(item.id) {
			continue
		}

		if isPowerOfTwo(item.distance) || item.depth == 1 {
			haves = append(haves, item.id)
		}

		parents, ok := dag.ParentsWithDepth(item.id)
		if !ok {
			continue
		}
		for _, p := range parents {
			heap.Push(&s.probeQueue, probeItem{isTip: false, depth: p.Depth, id: p.Id, distance: item.distance + 1})
		}
	}

	s.SentHaves = haves
	return haves
}

// HandleReceivedHave processes a have list received from the remote:
// absorbs the leading entries into TheirTips while TheirTipsRemaining is
// positive, records which entries we possess in the returned bitmap,
// marks those as known (transitively), and enqueues their children as
// delivery candidates.
func (s *State) HandleReceivedHave(dag *ecg.DAG, have []types.HeaderId) KnownBitmap {
	provided := int(s.TheirTipsRemaining)
	if provided > len(have) {
		provided = len(have)
	}
	for i := 0; i < provided; i++ {
		s.TheirTips.Add(have[i])
	}
	s.TheirTipsRemaining -= uint16(provided)

	var known KnownBitmap
	for i, h := range have {
		if !dag.Contains(h) {
			continue
		}
		known.set(i, true)
		s.MarkAsKnown(dag, h)

		children, ok := dag.ChildrenWithDepth(h)
		if !ok {
			continue
		}
		for _, c := range children {
			heap.Push(&s.sendQueue, sendItem{depth: c.Depth, id: c.Id})
		}
	}
	return known
}

// HandleReceivedKnown processes a known bitmap received in response to
// our last sent have list: every set bit marks the corresponding
// previously-sent id (and its ancestors) as known by the remote.
func (s *State) HandleReceivedKnown(dag *ecg.DAG, known KnownBitmap) {
	for i, id := range s.SentHaves {
		if known.get(i) {
			s.MarkAsKnown(dag, id)
		}
	}
}

// readyToDeliver reports whether every parent of id is either already
// proven known to the remote, or already queued/delivered this session
// (tracked in delivered). This guard is absent from the reference
// implementation: without it a header could jump ahead of a
// cross-branch parent the remote cannot yet have.
func readyToDeliver(dag *ecg.DAG, theirKnown func(types.HeaderId) bool, delivered map[types.HeaderId]struct{}, id types.HeaderId) bool {
	parents, ok := dag.Parents(id)
	if !ok {
		return false
	}
	for _, p := range parents {
		if theirKnown(p) {
			continue
		}
		if _, queuedOrSent := delivered[p]; queuedOrSent {
			continue
		}
		return false
	}
	return true
}

// PrepareHeaders fills the outgoing headers list by popping the send
// queue in depth order, skipping anything already known to the remote,
// deferring anything whose parents are not all known-or-queued, and
// otherwise marking each delivered header as known and enqueueing its
// children.
func (s *State) PrepareHeaders(dag *ecg.DAG) []ecg.Header {
	headers := make([]ecg.Header, 0, MaxDeliverHeaders)
	delivered := make(map[types.HeaderId]struct{})
	var deferred []sendItem

	for len(headers) < MaxDeliverHeaders && s.sendQueue.Len() > 0 {
		item := heap.Pop(&s.sendQueue).(sendItem)

		if s.TheirKnown.Contains(item.id) {
			continue
		}
		if _, already := delivered[item.id]; already {
			continue
		}

		if !readyToDeliver(dag, s.TheirKnown.Contains, delivered, item.id) {
			deferred = append(deferred, item)
			continue
		}

		header, ok := dag.GetHeader(item.id)
		if !ok {
			continue
		}
		headers = append(headers, header)
		delivered[item.id] = struct{}{}
		s.MarkAsKnown(dag, item.id)

		children, ok := dag.ChildrenWithDepth(item.id)
		if !ok {
			continue
		}
		for _, c := range children {
			heap.Push(&s.sendQueue, sendItem{depth: c.Depth, id: c.Id})
		}
	}

	// Headers we deferred this round may become deliverable once their
	// blocking parent is sent in a later round; re-queue them.
	for _, item := range deferred {
		heap.Push(&s.sendQueue, item)
	}

	return headers
}

// HandleReceivedHeaders inserts each received header into the DAG. Headers
// carry no id on the wire, so each id is recomputed from the header's own
// contents; Validate therefore always succeeds here and invalid is always
// empty. A header the DAG refuses (already present, or a parent missing)
// is dropped and not counted in accepted.
func (s *State) HandleReceivedHeaders(dag *ecg.DAG, headers []ecg.Header) (accepted int, invalid []ecg.Header) {
	for _, h := range headers {
		id := h.Id()
		if !h.Validate(id) {
			invalid = append(invalid, h)
			continue
		}
		if dag.Insert(id, h) {
			accepted++
		}
	}
	return accepted, invalid
}
