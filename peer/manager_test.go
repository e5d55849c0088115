package peer_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-sync/odyssey/peer"
	"github.com/odyssey-sync/odyssey/types"
)

func TestInitiateRejectsDuplicate(t *testing.T) {
	m := peer.NewManager()
	var id types.DeviceId
	id[0] = 1

	ch1, won1 := m.Initiate(id, 4)
	require.True(t, won1)
	require.NotNil(t, ch1)

	ch2, won2 := m.Initiate(id, 4)
	require.False(t, won2)
	require.Nil(t, ch2)

	require.True(t, m.Connected(id))
}

func TestDisconnectAllowsReInitiate(t *testing.T) {
	m := peer.NewManager()
	var id types.DeviceId
	id[0] = 2

	_, won := m.Initiate(id, 4)
	require.True(t, won)

	m.Disconnect(id)
	require.False(t, m.Connected(id))

	_, won2 := m.Initiate(id, 4)
	require.True(t, won2)
}

// TestInitiateConcurrentRaceHasOneWinner exercises the mutex-guarded
// insert-or-reject semantics under a race between simulated inbound and
// outbound connection attempts for the same peer.
func TestInitiateConcurrentRaceHasOneWinner(t *testing.T) {
	m := peer.NewManager()
	var id types.DeviceId
	id[0] = 3

	const attempts = 16
	var wg sync.WaitGroup
	wins := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, won := m.Initiate(id, 4)
			wins[i] = won
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}
