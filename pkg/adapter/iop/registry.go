package iop

import "sync"

// Evictable is a live customer connection that can be kicked when its
// identity checks in somewhere else.
type Evictable interface {
	Evict()
}

// CheckInRegistry enforces the one-live-customer-connection-per-identity
// rule: a new CheckIn replaces the previous registration and evicts its
// connection.
type CheckInRegistry struct {
	mu   sync.Mutex
	live map[string]Evictable
}

// NewCheckInRegistry returns an empty registry.
func NewCheckInRegistry() *CheckInRegistry {
	return &CheckInRegistry{live: make(map[string]Evictable)}
}

// CheckIn registers conn as the identity's live connection, evicting any
// previous one.
func (r *CheckInRegistry) CheckIn(identityID []byte, conn Evictable) {
	r.mu.Lock()
	previous := r.live[string(identityID)]
	r.live[string(identityID)] = conn
	r.mu.Unlock()

	if previous != nil && previous != conn {
		previous.Evict()
	}
}

// Release removes the registration if conn still owns it. Called when a
// customer connection closes; an evicted connection no longer owns its slot,
// so its release is a no-op.
func (r *CheckInRegistry) Release(identityID []byte, conn Evictable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[string(identityID)] == conn {
		delete(r.live, string(identityID))
	}
}

// IsOnline reports whether the identity currently holds a live customer
// connection.
func (r *CheckInRegistry) IsOnline(identityID []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[string(identityID)]
	return ok
}
