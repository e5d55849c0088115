// Package ecgsync implements the ECG-sync mini-protocol: the per-peer
// scratchpad (State) and the symmetric client/server state machine
// (Protocol) that let two peers discover and exchange missing headers
// over a lossy, high-latency link.
package ecgsync

import (
	"container/heap"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/odyssey-sync/odyssey/ecg"
	"github.com/odyssey-sync/odyssey/types"
)

// MaxHaveHeaders is the maximum number of ids in a single have list.
const MaxHaveHeaders = 32

// MaxDeliverHeaders is the maximum number of headers delivered per message.
const MaxDeliverHeaders = 32

// State is the per-peer, per-store scratchpad held for the duration of
// an active sync session. It is created at session
// start and discarded at session end; it is not safe for concurrent use.
type State struct {
	TheirTipsRemaining uint16
	TheirTips          mapset.Set[types.HeaderId]
	TheirKnown         mapset.Set[types.HeaderId]

	sendQueue  sendHeap
	probeQueue probeHeap

	// SentHaves is the ordered record of the last have list we sent,
	// needed to interpret the remote's subsequent known bitmap.
	SentHaves []types.HeaderId

	// pendingDeferred is allocated by NewState but never populated:
	// PrepareHeaders puts headers whose delivery it postpones back on
	// sendQueue instead.
	pendingDeferred map[types.HeaderId]struct{}
}

// NewState creates a sync scratchpad seeded with dag's current tips,
// ready to start proposing haves to a remote peer.
func NewState(dag *ecg.DAG) *State {
	s := &State{
		TheirTips:       mapset.NewSet[types.HeaderId](),
		TheirKnown:      mapset.NewSet[types.HeaderId](),
		pendingDeferred: make(map[types.HeaderId]struct{}),
	}
	for _, tip := range dag.Tips() {
		depth, ok := dag.GetDepth(tip)
		if !ok {
			continue
		}
		heap.Push(&s.probeQueue, probeItem{isTip: true, depth: depth, id: tip, distance: 0})
	}
	return s
}

// SetTheirTipsRemaining records the total tip count the remote announced
// in its first message.
func (s *State) SetTheirTipsRemaining(tipCount uint16) {
	s.TheirTipsRemaining = tipCount
}
