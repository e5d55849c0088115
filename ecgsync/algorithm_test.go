package ecgsync

import (
	"fmt"
	"testing"

	"github.com/odyssey-sync/odyssey/ecg"
	"github.com/odyssey-sync/odyssey/types"
)

var testStore types.StoreId

// bodySeq gives every header built by mkHeader its own BodyRef, so two
// headers with the same parents are still distinct headers.
var bodySeq int

func mkHeader(parents ...types.HeaderId) (types.HeaderId, ecg.Header) {
	bodySeq++
	h := ecg.Header{Store: testStore, Parents: parents, BodyRef: types.HashHeaderId([]byte(fmt.Sprintf("body-%d", bodySeq)))}
	return h.Id(), h
}

func insert(t *testing.T, dag *ecg.DAG, parents ...types.HeaderId) types.HeaderId {
	t.Helper()
	id, h := mkHeader(parents...)
	if !dag.Insert(id, h) {
		t.Fatalf("insert failed for header with parents %v", parents)
	}
	return id
}

func TestIsPowerOfTwo(t *testing.T) {
	cases := map[uint64]bool{0: true, 1: true, 2: true, 3: false, 4: true, 5: false, 8: true, 15: false, 16: true}
	for n, want := range cases {
		if got := isPowerOfTwo(n); got != want {
			t.Errorf("isPowerOfTwo(%d) = %v, want %v", n, got, want)
		}
	}
}

// TestMarkAsKnownClosesUnderAncestors verifies the known-set
// monotonicity property: marking a deep header as known must also mark
// every one of its ancestors.
func TestMarkAsKnownClosesUnderAncestors(t *testing.T) {
	dag := ecg.New()
	root := insert(t, dag)
	mid := insert(t, dag, root)
	leaf := insert(t, dag, mid)

	s := NewState(dag)
	s.MarkAsKnown(dag, leaf)

	for _, id := range []types.HeaderId{root, mid, leaf} {
		if !s.TheirKnown.Contains(id) {
			t.Errorf("expected %s to be known after marking leaf", id)
		}
	}
}

// TestPrepareHavesRespectsMaxHaveHeaders ensures the proposal never
// exceeds the protocol's 32-entry bound even over a long chain.
func TestPrepareHavesRespectsMaxHaveHeaders(t *testing.T) {
	dag := ecg.New()
	var tip types.HeaderId
	for i := 0; i < 200; i++ {
		if i == 0 {
			tip = insert(t, dag)
		} else {
			tip = insert(t, dag, tip)
		}
	}

	s := NewState(dag)
	haves := s.PrepareHaves(dag)
	if len(haves) > MaxHaveHeaders {
		t.Fatalf("got %d haves, want <= %d", len(haves), MaxHaveHeaders)
	}
}

// TestPrepareHeadersDefersCrossBranchParent is the regression test for
// the deferred-delivery guard, required but missing from the reference
// implementation: a merge header must not be delivered before both of
// its parents are known to the remote.
func TestPrepareHeadersDefersCrossBranchParent(t *testing.T) {
	dag := ecg.New()
	root := insert(t, dag)
	branchA := insert(t, dag, root)
	branchB := insert(t, dag, root)
	merge := insert(t, dag, branchA, branchB)

	s := NewState(dag)
	// Pretend the remote already proved it has root and branchA, but not
	// branchB, and the merge header is the only thing queued to send.
	s.TheirKnown.Add(root)
	s.TheirKnown.Add(branchA)
	s.sendQueue = sendHeap{{depth: 3, id: merge}}

	headers := s.PrepareHeaders(dag)
	for _, h := range headers {
		if h.Id() == merge {
			t.Fatal("merge header delivered before its branchB parent is known")
		}
	}
}
