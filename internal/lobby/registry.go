// internal/lobby/registry.go
package lobby

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the process-local index of live subscriber handles per match.
// It is never authoritative: match state lives in the store, and the
// registry is safe to rebuild empty after a restart.
type Registry struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[uuid.UUID]*Subscriber // matchID -> subscriberID -> handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[uuid.UUID]map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers the handle under matchID.
func (r *Registry) Subscribe(matchID uuid.UUID, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[matchID]
	if !ok {
		set = make(map[uuid.UUID]*Subscriber)
		r.subs[matchID] = set
	}
	set[sub.ID] = sub
}

// Unsubscribe removes the handle. Returns false if it was already gone.
func (r *Registry) Unsubscribe(matchID, subscriberID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[matchID]
	if !ok {
		return false
	}
	if _, ok := set[subscriberID]; !ok {
		return false
	}
	delete(set, subscriberID)
	if len(set) == 0 {
		delete(r.subs, matchID)
	}
	return true
}

// Snapshot returns the current handle set for matchID. Broadcasts iterate
// the snapshot, so concurrent subscribe/unsubscribe cannot corrupt the pass.
func (r *Registry) Snapshot(matchID uuid.UUID) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.subs[matchID]
	out := make([]*Subscriber, 0, len(set))
	for _, sub := range set {
		out = append(out, sub)
	}
	return out
}

// Evict drops the whole entry for a match and returns the removed handles,
// so terminal transitions can tear the watchers down instead of letting
// entries accumulate for finished matches.
func (r *Registry) Evict(matchID uuid.UUID) []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.subs[matchID]
	delete(r.subs, matchID)
	out := make([]*Subscriber, 0, len(set))
	for _, sub := range set {
		out = append(out, sub)
	}
	return out
}

// Count returns the number of live handles for matchID.
func (r *Registry) Count(matchID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[matchID])
}
