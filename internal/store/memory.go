package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// States are keyed by entity key, with new states replacing previous values.
// Subscribers receive updates via buffered channels; if a subscriber's buffer
// is full the update is dropped for that subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	states      map[string]EntityState
	subscribers map[chan EntityState]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      make(map[string]EntityState),
		subscribers: make(map[chan EntityState]struct{}),
	}
}

// Update stores an [EntityState] and notifies all subscribers.
func (m *MemoryStore) Update(state EntityState) {
	m.mu.Lock()
	m.states[state.Key] = state
	m.mu.Unlock()

	m.notifySubscribers(state)
}

// Get returns the state stored under key.
func (m *MemoryStore) Get(key string) (EntityState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[key]
	return s, ok
}

// GetAll returns a copy of all stored states, ordered by key.
func (m *MemoryStore) GetAll() []EntityState {
	m.mu.RLock()
	results := make([]EntityState, 0, len(m.states))
	for _, s := range m.states {
		results = append(results, s)
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan EntityState {
	ch := make(chan EntityState, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan EntityState) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the state to all active subscribers without
// blocking; full buffers drop the message.
func (m *MemoryStore) notifySubscribers(state EntityState) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}
