// Package state owns the live connection registry. All mutation of client
// records goes through the Manager; callers never iterate the underlying map.
package state

import (
	"sync"
	"sync/atomic"

	"parley/internal/types"
	"parley/pkg/protocol"
)

// Broadcast is a queued fan-out: the event to encode plus an optional
// connection excluded from delivery (typing indicators skip their sender).
type Broadcast struct {
	Event     protocol.Outbound
	ExcludeID string
}

type Manager struct {
	mu      sync.RWMutex
	clients map[string]*types.Client
	events  chan *Broadcast

	droppedEvents     atomic.Int64
	droppedDeliveries atomic.Int64
}

func NewManager(eventBuffer int) *Manager {
	if eventBuffer <= 0 {
		eventBuffer = 100
	}
	return &Manager{
		clients: make(map[string]*types.Client),
		events:  make(chan *Broadcast, eventBuffer),
	}
}

// AddClient makes the client visible to subsequent ForEach calls. A new
// client starts liveness-confirmed; the first probe cycle challenges it.
func (m *Manager) AddClient(c *types.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Alive = true
	m.clients[c.ID] = c
}

// RemoveClient deletes the entry and returns it. The second return is false
// when the client was already gone, so teardown runs its disconnect
// broadcast at most once.
func (m *Manager) RemoveClient(id string) (*types.Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if ok {
		delete(m.clients, id)
	}
	return c, ok
}

func (m *Manager) Client(id string) (*types.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	return c, ok
}

// ForEach applies fn to a snapshot of the live set, skipping exceptID when
// non-empty. fn runs outside the registry lock; a client removed after the
// snapshot at worst receives a frame on its buffered Send channel that no
// pump will drain.
func (m *Manager) ForEach(exceptID string, fn func(*types.Client)) {
	m.mu.RLock()
	snapshot := make([]*types.Client, 0, len(m.clients))
	for id, c := range m.clients {
		if exceptID != "" && id == exceptID {
			continue
		}
		snapshot = append(snapshot, c)
	}
	m.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}

// BindIdentity attaches a display name to a live connection. Uniqueness is
// the registration endpoint's problem, not the registry's.
func (m *Manager) BindIdentity(id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	c.Identity = name
	return nil
}

// Identity returns the bound display name, or ok=false when the connection
// is gone or never registered.
func (m *Manager) Identity(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok || c.Identity == "" {
		return "", false
	}
	return c.Identity, true
}

// Unconfirmed returns clients that have not answered the probe sent in the
// previous cycle.
func (m *Manager) Unconfirmed() []*types.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []*types.Client
	for _, c := range m.clients {
		if !c.Alive {
			stale = append(stale, c)
		}
	}
	return stale
}

// MarkAllUnconfirmed flags every live client as awaiting a probe response
// and returns them so the caller can send the probes.
func (m *Manager) MarkAllUnconfirmed() []*types.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := make([]*types.Client, 0, len(m.clients))
	for _, c := range m.clients {
		c.Alive = false
		marked = append(marked, c)
	}
	return marked
}

// Confirm records a probe response.
func (m *Manager) Confirm(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[id]; ok {
		c.Alive = true
	}
}

// Enqueue hands a broadcast to the fan-out pump. The queue never blocks a
// connection handler; overflow is counted and dropped.
func (m *Manager) Enqueue(b *Broadcast) {
	select {
	case m.events <- b:
	default:
		m.droppedEvents.Add(1)
	}
}

// Events is drained by the single broadcast pump goroutine.
func (m *Manager) Events() <-chan *Broadcast {
	return m.events
}

// CountDeliveryDrop records one recipient whose send buffer was full.
func (m *Manager) CountDeliveryDrop() {
	m.droppedDeliveries.Add(1)
}

func (m *Manager) Stats() types.ServerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bound := 0
	for _, c := range m.clients {
		if c.Identity != "" {
			bound++
		}
	}

	return types.ServerStats{
		ConnectedClients:  len(m.clients),
		BoundIdentities:   bound,
		DroppedEvents:     m.droppedEvents.Load(),
		DroppedDeliveries: m.droppedDeliveries.Load(),
	}
}
