// Package ecg implements the causal DAG of headers (the Event Causality
// Graph) that backs every replicated store: its data types, invariants,
// and the queries the sync protocol and store handler need.
package ecg

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/odyssey-sync/odyssey/types"
)

// MaxOpsPerBody is the maximum number of CRDT operations a single Body
// may bundle.
const MaxOpsPerBody = 256

// Header is the metadata for one batch of CRDT operations: the set of
// parent headers it depends on (empty meaning "attached to the synthetic
// root"), and a reference to its Body.
type Header struct {
	Store   types.StoreId
	Parents []types.HeaderId
	BodyRef types.HeaderId
}

// Body is an opaque container of 1..=256 CRDT operations, time-concretized
// against the HeaderId of the header that encloses them.
type Body struct {
	Ops [][]byte
}

// IsRoot reports whether h has no parents, i.e. is attached directly to
// the synthetic root of the DAG.
func (h Header) IsRoot() bool { return len(h.Parents) == 0 }

// Encode produces the canonical byte encoding of h used to derive its
// HeaderId. It sorts parents first so that HeaderId does not depend on
// the order parents happened to be supplied in.
func (h Header) Encode() []byte {
	parents := append([]types.HeaderId(nil), h.Parents...)
	sort.Slice(parents, func(i, j int) bool { return parents[i].Less(parents[j]) })

	var buf bytes.Buffer
	buf.Write(h.Store[:])
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(parents)))
	buf.Write(n[:])
	for _, p := range parents {
		buf.Write(p[:])
	}
	buf.Write(h.BodyRef[:])
	return buf.Bytes()
}

// Id derives the HeaderId that a correctly constructed instance of h
// must have.
func (h Header) Id() types.HeaderId {
	return types.HashHeaderId(h.Encode())
}

// Validate reports whether id is the correct HeaderId for h, i.e.
// whether recomputing the hash of h's contents reproduces id.
func (h Header) Validate(id types.HeaderId) bool {
	return h.Id() == id
}

// Encode produces the canonical byte encoding of a Body, used to
// derive the BodyRef a Header must point to.
func (b Body) Encode() []byte {
	var buf bytes.Buffer
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b.Ops)))
	buf.Write(n[:])
	for _, op := range b.Ops {
		var l [8]byte
		binary.BigEndian.PutUint64(l[:], uint64(len(op)))
		buf.Write(l[:])
		buf.Write(op)
	}
	return buf.Bytes()
}

// Id derives the content-addressed HeaderId a Body is referenced by.
func (b Body) Id() types.HeaderId {
	return types.HashHeaderId(b.Encode())
}
