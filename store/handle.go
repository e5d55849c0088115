package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/odyssey-sync/odyssey/ecg"
	"github.com/odyssey-sync/odyssey/types"
)

// Handle is the external, typed API a store's creator uses to submit
// operations and subscribe to state, mirroring the Rust StoreHandle's
// apply/apply_batch/subscribe_to_state (odyssey-core/src/core.rs).
type Handle[S, Op any] struct {
	storeID  types.StoreId
	commands chan<- Command[S, Op]
}

// Apply submits a single operation as a new header whose parents are
// parents, returning the new header's id.
func (h *Handle[S, Op]) Apply(ctx context.Context, parents []types.HeaderId, op Op) (types.HeaderId, error) {
	ids, err := h.ApplyBatch(ctx, parents, []Op{op})
	if err != nil {
		return types.HeaderId{}, err
	}
	return ids, nil
}

// ApplyBatch submits up to ecg.MaxOpsPerBody operations as a single new
// header, returning its id.
func (h *Handle[S, Op]) ApplyBatch(ctx context.Context, parents []types.HeaderId, ops []Op) (types.HeaderId, error) {
	if len(ops) == 0 {
		return types.HeaderId{}, errors.New("store: ApplyBatch requires at least one operation")
	}
	if len(ops) > ecg.MaxOpsPerBody {
		return types.HeaderId{}, errors.Errorf("store: ApplyBatch accepts at most %d operations, got %d", ecg.MaxOpsPerBody, len(ops))
	}
	reply := make(chan types.HeaderId, 1)
	cmd := ApplyCommand[S, Op]{Parents: parents, Ops: ops, Reply: reply}

	select {
	case h.commands <- cmd:
	case <-ctx.Done():
		return types.HeaderId{}, ctx.Err()
	}

	select {
	case id, ok := <-reply:
		if !ok {
			return types.HeaderId{}, errors.Errorf("store: handler rejected header for store %s", h.storeID)
		}
		return id, nil
	case <-ctx.Done():
		return types.HeaderId{}, ctx.Err()
	}
}

// SubscribeState registers a channel that receives the store's current
// folded state, then the state after every locally-applied batch and
// every sync session; an update is dropped while the channel's buffer is
// full. The returned channel is
// never closed by the handler; callers stop reading from it when no
// longer interested.
func (h *Handle[S, Op]) SubscribeState(ctx context.Context, buffer int) (<-chan S, error) {
	updates := make(chan S, buffer)
	select {
	case h.commands <- SubscribeCommand[S, Op]{Updates: updates}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return updates, nil
}

// StoreId returns the id of the store this handle addresses.
func (h *Handle[S, Op]) StoreId() types.StoreId { return h.storeID }
