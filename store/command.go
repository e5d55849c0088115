package store

import (
	"io"

	"github.com/odyssey-sync/odyssey/crdt"
	"github.com/odyssey-sync/odyssey/types"
)

// ApplyFunc folds a single operation into the current CRDT state,
// mirroring the Rust CRDT trait's `apply(self, st, op_time, op) -> Self`
// without requiring Go generics to express a self-returning interface
// (see crdt.go). A Handler is parameterized by one ApplyFunc for the
// lifetime of the store.
type ApplyFunc[S, Op any] func(state S, st crdt.CausalState, opTime types.HeaderId, op Op) S

// Command is sent on a store's typed, caller-facing channel: operations
// that only the store's own application code issues.
type Command[S, Op any] interface {
	isCommand()
}

// ApplyCommand appends a new header (built from parents and the given
// operations) to the store's DAG and folds its operations into state.
type ApplyCommand[S, Op any] struct {
	Parents []types.HeaderId
	Ops     []Op
	// Reply receives the new header's id once the header has been
	// inserted into the DAG and its operations folded into state. If the
	// DAG rejects the header, Reply is closed without a value.
	Reply chan<- types.HeaderId
}

func (ApplyCommand[S, Op]) isCommand() {}

// SubscribeCommand registers a channel that receives the current folded
// state at once, then again after every applied batch and every sync
// session. Later updates are dropped while the channel's buffer is full.
// There is no way to unsubscribe, and the handler never closes the
// channel.
type SubscribeCommand[S, Op any] struct {
	Updates chan<- S
}

func (SubscribeCommand[S, Op]) isCommand() {}

// UntypedCommand is sent on a store's peer-facing channel: operations
// issued by peer-management code that does not know the store's
// concrete CRDT type.
type UntypedCommand interface {
	isUntypedCommand()
}

// PeerWantsSync requests that the store's handler run one sync session
// against the given peer over conn. IsClient selects which side of the
// symmetric protocol to drive. Result reports
// completion.
type PeerWantsSync struct {
	Peer     types.DeviceId
	Conn     io.ReadWriter
	IsClient bool
	Result   chan<- error
}

func (PeerWantsSync) isUntypedCommand() {}

// GetTips asks the handler for its DAG's current tip set, used by peer
// miniprotocols that need to open a sync session without touching
// the CRDT-typed state directly.
type GetTips struct {
	Reply chan<- []types.HeaderId
}

func (GetTips) isUntypedCommand() {}
