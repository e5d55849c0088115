package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-sync/odyssey/crdt"
	"github.com/odyssey-sync/odyssey/types"
)

type fakeCausalState struct{}

func (fakeCausalState) Depth(types.HeaderId) (uint64, bool) { return 0, false }

func TestTwoPMapInsertAndGet(t *testing.T) {
	m := crdt.NewTwoPMap[string]()
	opTime := types.HashHeaderId([]byte("op-1"))

	m = m.Apply(fakeCausalState{}, opTime, crdt.Insert[string]("hello"))

	v, ok := m.Get(opTime)
	require.True(t, ok)
	require.Equal(t, "hello", v)
	require.Equal(t, 1, m.Len())
}

func TestTwoPMapDeleteWins(t *testing.T) {
	m := crdt.NewTwoPMap[string]()
	opTime := types.HashHeaderId([]byte("op-1"))

	m = m.Apply(fakeCausalState{}, opTime, crdt.Insert[string]("hello"))
	m = m.Apply(fakeCausalState{}, opTime, crdt.Delete[string](opTime))

	// Delete-then-insert for the same key must not resurrect the entry:
	// a tombstoned key can never be reinserted (odyssey-crdt's TwoPMap
	// semantics).
	m = m.Apply(fakeCausalState{}, opTime, crdt.Insert[string]("hello-again"))

	_, ok := m.Get(opTime)
	require.False(t, ok)
	require.Equal(t, 0, m.Len())
}

func TestTwoPMapApplyOnDeletedKeyIsNoop(t *testing.T) {
	m := crdt.NewTwoPMap[int]()
	opTime := types.HashHeaderId([]byte("op-1"))

	m = m.Apply(fakeCausalState{}, opTime, crdt.Insert[int](1))
	m = m.Apply(fakeCausalState{}, opTime, crdt.Delete[int](opTime))

	applied := false
	m = m.Apply(fakeCausalState{}, opTime, crdt.ApplyTo[int](opTime, func(current int, st crdt.CausalState, t types.HeaderId) int {
		applied = true
		return current + 1
	}))

	require.False(t, applied)
	_, ok := m.Get(opTime)
	require.False(t, ok)
}

// TestTwoPMapCommutative checks that applying two independent inserts in
// either order converges to the same map, the core CRDT commutativity
// requirement.
func TestTwoPMapCommutative(t *testing.T) {
	timeA := types.HashHeaderId([]byte("a"))
	timeB := types.HashHeaderId([]byte("b"))

	order1 := crdt.NewTwoPMap[string]()
	order1 = order1.Apply(fakeCausalState{}, timeA, crdt.Insert[string]("A"))
	order1 = order1.Apply(fakeCausalState{}, timeB, crdt.Insert[string]("B"))

	order2 := crdt.NewTwoPMap[string]()
	order2 = order2.Apply(fakeCausalState{}, timeB, crdt.Insert[string]("B"))
	order2 = order2.Apply(fakeCausalState{}, timeA, crdt.Insert[string]("A"))

	require.Equal(t, order1.Len(), order2.Len())
	a1, _ := order1.Get(timeA)
	a2, _ := order2.Get(timeA)
	require.Equal(t, a1, a2)
	b1, _ := order1.Get(timeB)
	b2, _ := order2.Get(timeB)
	require.Equal(t, b1, b2)
}
