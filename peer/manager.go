// Package peer implements the peer registry (PeerManager): a read-mostly
// map of connected devices guarded by single-writer, atomic
// insert-or-reject semantics so that a duplicate
// connection attempt from the same DeviceId is detected rather than
// silently clobbering an existing session. Grounded on
// odyssey-core/src/core.rs's SharedState (an
// `Arc<RwLock<BTreeMap<DeviceId, UnboundedSender<...>>>>`) and its
// initiate_peer function.
package peer

import (
	"sync"

	"github.com/odyssey-sync/odyssey/log"
	"github.com/odyssey-sync/odyssey/types"
)

// Command is a message routed to a connected peer's session goroutine.
type Command interface {
	isCommand()
}

// Manager tracks every device this node currently has a live session
// with. It is safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	peers map[types.DeviceId]chan<- Command

	log *log.Logger
}

// NewManager creates an empty peer registry.
func NewManager() *Manager {
	return &Manager{
		peers: make(map[types.DeviceId]chan<- Command),
		log:   log.Root().With("component", "peer-manager"),
	}
}

// Initiate registers peerID as connected, returning the command channel
// callers should send it messages on, and true if this call won the
// race to register it. If a session for peerID is already registered,
// it returns (nil, false) and the caller must disconnect rather than
// silently replace the existing session. The single mutex acquisition
// below is what makes two genuinely concurrent Initiate calls for the
// same peerID (a simultaneous inbound and outbound connection attempt
// racing each other) resolve to exactly one winner, matching the atomic
// try_insert under a single write-lock acquisition in the Rust source's
// initiate_peer.
func (m *Manager) Initiate(peerID types.DeviceId, buffer int) (chan Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.peers[peerID]; exists {
		m.log.Debug("peer already connected, rejecting duplicate session", "peer", peerID.String())
		return nil, false
	}
	ch := make(chan Command, buffer)
	m.peers[peerID] = ch
	m.log.Debug("registered peer", "peer", peerID.String())
	return ch, true
}

// Disconnect removes peerID from the registry. Safe to call even if
// peerID was never registered.
func (m *Manager) Disconnect(peerID types.DeviceId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peerID)
	m.log.Debug("disconnected peer", "peer", peerID.String())
}

// Send routes cmd to peerID's session, returning false if peerID is not
// currently registered.
func (m *Manager) Send(peerID types.DeviceId, cmd Command) bool {
	m.mu.RLock()
	ch, ok := m.peers[peerID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	ch <- cmd
	return true
}

// Connected reports whether peerID currently has a registered session.
func (m *Manager) Connected(peerID types.DeviceId) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.peers[peerID]
	return ok
}

// Peers returns the DeviceIds of every currently registered peer.
func (m *Manager) Peers() []types.DeviceId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.DeviceId, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}
