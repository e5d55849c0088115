package store

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/odyssey-sync/odyssey/log"
	"github.com/odyssey-sync/odyssey/types"
)

// Status tracks a store's lifecycle from the moment its StoreId is first
// reserved to the point its handler goroutine is running and accepting
// commands, mirroring the Rust StoreStatus enum (odyssey-core/src/
// core.rs). A store is Initializing while its handler goroutine is
// being spawned; during that window, commands destined for it are
// queued rather than dropped.
type Status int

const (
	StatusInitializing Status = iota
	StatusRunning
)

type entry struct {
	status Status
	// untyped is only non-nil once status == StatusRunning.
	untyped chan<- UntypedCommand
	// queued holds untyped commands submitted while status ==
	// StatusInitializing; they are flushed to untyped once the handler
	// goroutine is spawned.
	queued []UntypedCommand
}

// Registry tracks every store this node has created or joined, guarding
// against duplicate StoreIds and queuing peer-facing commands for stores
// still mid-launch. It is the Go analogue of Odyssey's
// `active_stores: watch::Sender<StoreStatuses<...>>`.
type Registry struct {
	mu      sync.Mutex
	entries map[types.StoreId]*entry
	log     *log.Logger
}

// NewRegistry creates an empty store registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[types.StoreId]*entry),
		log:     log.Root().With("component", "store-registry"),
	}
}

// reserve picks a StoreId unused in the registry, retrying with a fresh
// random nonce on collision.
func (r *Registry) reserve(initialStateDigest []byte) types.StoreId {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		nonce := uuid.New()
		var nonceBytes [types.IdLength]byte
		copy(nonceBytes[:], nonce[:])
		id := types.NewStoreId(nonceBytes, initialStateDigest)

		if _, exists := r.entries[id]; exists {
			r.log.Debug("store id collision, retrying with new nonce", "store", id.String())
			continue
		}
		r.entries[id] = &entry{status: StatusInitializing}
		return id
	}
}

// MarkRunning transitions storeID to Running, attaching the channel its
// handler goroutine now reads untyped commands from, and flushes any
// commands that were queued while it was initializing.
func (r *Registry) MarkRunning(storeID types.StoreId, untyped chan<- UntypedCommand) {
	r.mu.Lock()
	e, ok := r.entries[storeID]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.status = StatusRunning
	e.untyped = untyped
	queued := e.queued
	e.queued = nil
	r.mu.Unlock()

	for _, cmd := range queued {
		untyped <- cmd
	}
}

// Send routes an untyped command to storeID's handler, queuing it if
// the store is still initializing. Returns false if storeID is unknown.
func (r *Registry) Send(storeID types.StoreId, cmd UntypedCommand) bool {
	r.mu.Lock()
	e, ok := r.entries[storeID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if e.status == StatusInitializing {
		e.queued = append(e.queued, cmd)
		r.mu.Unlock()
		return true
	}
	untyped := e.untyped
	r.mu.Unlock()

	untyped <- cmd
	return true
}

// Status reports storeID's current lifecycle status.
func (r *Registry) Status(storeID types.StoreId) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[storeID]
	if !ok {
		return 0, false
	}
	return e.status, true
}

// CreateStore reserves a fresh StoreId for a brand-new store seeded with
// initialStateDigest (a content digest of the CRDT's empty initial
// value), spawns its handler goroutine, and returns both the id and a
// typed Handle bound to it.
func CreateStore[S, Op any](r *Registry, initialStateDigest []byte, initial S, apply ApplyFunc[S, Op]) (types.StoreId, *Handle[S, Op]) {
	storeID := r.reserve(initialStateDigest)
	return storeID, launch(r, storeID, initial, apply)
}

// JoinStore registers a handler for a store this node learned about from
// a peer but has no local data for yet, starting from an empty DAG and
// the CRDT's zero value.
func JoinStore[S, Op any](r *Registry, storeID types.StoreId, zero S, apply ApplyFunc[S, Op]) (*Handle[S, Op], error) {
	r.mu.Lock()
	if _, exists := r.entries[storeID]; exists {
		r.mu.Unlock()
		return nil, errors.Errorf("store: already joined or joining store %s", storeID)
	}
	r.entries[storeID] = &entry{status: StatusInitializing}
	r.mu.Unlock()

	return launch(r, storeID, zero, apply), nil
}

func launch[S, Op any](r *Registry, storeID types.StoreId, initial S, apply ApplyFunc[S, Op]) *Handle[S, Op] {
	typed := make(chan Command[S, Op], 16)
	untyped := make(chan UntypedCommand, 16)

	handler := NewHandler(storeID, initial, apply, typed, untyped)
	go handler.Run()

	r.MarkRunning(storeID, untyped)
	r.log.Info("launched store", "store", storeID.String())

	return &Handle[S, Op]{storeID: storeID, commands: typed}
}
