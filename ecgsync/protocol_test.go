package ecgsync_test

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-sync/odyssey/ecg"
	"github.com/odyssey-sync/odyssey/ecgsync"
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
	require.True(t, dag.Insert(id, h))
	return id
}

// linearChain builds a DAG with n headers, each the sole child of the
// previous one, and returns the ids in insertion order.
func linearChain(t *testing.T, dag *ecg.DAG, n int) []types.HeaderId {
	t.Helper()
	ids := make([]types.HeaderId, 0, n)
	var parent *types.HeaderId
	for i := 0; i < n; i++ {
		var id types.HeaderId
		if parent == nil {
			id = insert(t, dag)
		} else {
			id = insert(t, dag, *parent)
		}
		ids = append(ids, id)
		parent = &ids[len(ids)-1]
	}
	return ids
}

func runSync(t *testing.T, client, server *ecg.DAG) (clientErr, serverErr error) {
	t.Helper()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	done := make(chan struct{}, 2)
	go func() {
		clientErr = ecgsync.NewProtocol(client, nil).RunClient(a)
		done <- struct{}{}
	}()
	go func() {
		serverErr = ecgsync.NewProtocol(server, nil).RunServer(b)
		done <- struct{}{}
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("sync session timed out")
		}
	}
	return clientErr, serverErr
}

// TestSyncConvergenceDisjointTrees covers the scenario where two
// replicas with entirely disjoint histories converge to the union of
// both after running sync to quiescence.
func TestSyncConvergenceDisjointTrees(t *testing.T) {
	client := ecg.New()
	server := ecg.New()

	linearChain(t, client, 5)
	linearChain(t, server, 5)

	clientErr, serverErr := runSync(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)

	require.True(t, ecg.Equal(client, server))
}

// TestSyncConvergenceBothEmpty covers the degenerate scenario where
// neither side has any headers at all: the client's opening request is
// already fully quiescent, so the server's opening response must be
// the only message exchanged and the session must not block waiting
// for a round that never comes.
func TestSyncConvergenceBothEmpty(t *testing.T) {
	client := ecg.New()
	server := ecg.New()

	clientErr, serverErr := runSync(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.True(t, ecg.Equal(client, server))
}

// TestSyncConvergenceCommonPrefix covers the common-prefix scenario: both
// sides share a prefix, then diverge; after sync both hold the union.
func TestSyncConvergenceCommonPrefix(t *testing.T) {
	client := ecg.New()
	server := ecg.New()

	shared := linearChain(t, client, 3)
	for _, id := range shared {
		h, ok := client.GetHeader(id)
		require.True(t, ok)
		require.True(t, server.Insert(id, h))
	}

	tip := shared[len(shared)-1]
	insert(t, client, tip)
	insert(t, server, tip)

	clientErr, serverErr := runSync(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.True(t, ecg.Equal(client, server))
}

// TestSyncConvergenceAlreadyEqual covers the degenerate scenario: both
// sides already hold the same DAG, so the session quiesces immediately
// with no headers exchanged beyond the opening tip counts.
func TestSyncConvergenceAlreadyEqual(t *testing.T) {
	client := ecg.New()
	ids := linearChain(t, client, 4)

	server := ecg.New()
	for _, id := range ids {
		h, ok := client.GetHeader(id)
		require.True(t, ok)
		require.True(t, server.Insert(id, h))
	}

	clientErr, serverErr := runSync(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.True(t, ecg.Equal(client, server))
}

// TestSyncConvergenceWideFanout exercises multiple tips and a merge
// header whose parents come from different branches, stressing the
// deferred-delivery guard.
func TestSyncConvergenceWideFanout(t *testing.T) {
	client := ecg.New()
	rootId := insert(t, client)
	branchA := insert(t, client, rootId)
	branchB := insert(t, client, rootId)
	insert(t, client, branchA, branchB) // merge header, cross-branch parents

	server := ecg.New()

	clientErr, serverErr := runSync(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.True(t, ecg.Equal(client, server))
}

