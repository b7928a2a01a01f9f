package realtime

import (
	"sort"
	"sync"
)

// ConnectionHandle is one live socket belonging to a user. A user may hold
// several at once (multi-device, multi-tab).
type ConnectionHandle interface {
	// ID uniquely identifies the handle for the lifetime of the connection.
	ID() string
	// UserID is the authenticated owner of the handle.
	UserID() uint
	// Deliver enqueues a payload for the peer without blocking. Returns false
	// when the handle's buffer is full or closed; the caller should drop the
	// handle.
	Deliver(payload []byte) bool
}

// PresenceRegistry maps user ids to their live connection handles. It is
// ephemeral: rebuilt from nothing on restart, with no durability guarantees.
// The in-memory implementation is single-process; deployments running several
// gateway instances need a shared backend (see NewRedisPresenceRegistry).
type PresenceRegistry interface {
	Register(userID uint, h ConnectionHandle)
	// Unregister removes the handle; the user entry disappears entirely once
	// its handle set is empty.
	Unregister(userID uint, h ConnectionHandle)
	HandlesFor(userID uint) []ConnectionHandle
	// OnlineUsers is a snapshot of all currently registered user ids.
	OnlineUsers() []uint
}

// memoryPresenceRegistry is the process-local default.
type memoryPresenceRegistry struct {
	mu      sync.RWMutex
	handles map[uint]map[string]ConnectionHandle
}

// NewMemoryPresenceRegistry creates an in-memory presence registry.
func NewMemoryPresenceRegistry() PresenceRegistry {
	return &memoryPresenceRegistry{handles: make(map[uint]map[string]ConnectionHandle)}
}

func (p *memoryPresenceRegistry) Register(userID uint, h ConnectionHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.handles[userID]
	if !ok {
		set = make(map[string]ConnectionHandle)
		p.handles[userID] = set
	}
	set[h.ID()] = h
}

func (p *memoryPresenceRegistry) Unregister(userID uint, h ConnectionHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.handles[userID]
	if !ok {
		return
	}
	delete(set, h.ID())
	if len(set) == 0 {
		delete(p.handles, userID)
	}
}

func (p *memoryPresenceRegistry) HandlesFor(userID uint) []ConnectionHandle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := p.handles[userID]
	result := make([]ConnectionHandle, 0, len(set))
	for _, h := range set {
		result = append(result, h)
	}
	return result
}

func (p *memoryPresenceRegistry) OnlineUsers() []uint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]uint, 0, len(p.handles))
	for userID := range p.handles {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}
