package actions

import (
	"context"
	"sync"

	"github.com/jpalmerr/pbxbridge/internal/pbxapi"
)

// Client is the subset of the backend client used for actions.
// *pbxapi.Client satisfies it.
type Client interface {
	OriginateCall(ctx context.Context, extension, number string) (pbxapi.Result, error)
	ToggleForwarding(ctx context.Context, forwardID int, enabled bool, forwardType *string) (pbxapi.Result, error)
}

type registration struct {
	id     string
	client Client
}

// Registry maps connection ids to clients, preserving registration order.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds or replaces the client for id. A replaced client keeps its
// original position.
func (r *Registry) Register(id string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].id == id {
			r.entries[i].client = client
			return
		}
	}
	r.entries = append(r.entries, registration{id: id, client: client})
}

// Remove drops the client for id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// Get returns the client registered under id.
func (r *Registry) Get(id string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.id == id {
			return e.client, true
		}
	}
	return nil, false
}

// First returns the earliest registered connection that is still active.
func (r *Registry) First() (string, Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return "", nil, false
	}
	return r.entries[0].id, r.entries[0].client, true
}

// IDs returns the registered connection ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}
	return ids
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
