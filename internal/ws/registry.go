package ws

import "sync"

// Channel is one open duplex connection belonging to a user. A user may hold
// several channels at once (one per browser tab).
type Channel interface {
	// Send queues a payload for delivery. It must not block; a full queue
	// or closed channel drops the payload and reports false.
	Send(payload []byte) bool

	// Open reports whether the transport is still usable.
	Open() bool
}

// Registry maps a user id to the set of channels currently open for that
// user. It is injected into the hub rather than held as a package singleton
// so tests can build their own.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[Channel]struct{}
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]map[Channel]struct{})}
}

// Add records a channel for the user, creating the set if absent.
func (r *Registry) Add(userID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.channels[userID]
	if !ok {
		set = make(map[Channel]struct{})
		r.channels[userID] = set
	}
	set[ch] = struct{}{}
}

// Remove drops one channel reference. The user entry is deleted when its
// set empties so the map does not grow with departed users.
func (r *Registry) Remove(userID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.channels[userID]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(r.channels, userID)
	}
}

// Broadcast sends the payload to every open channel of the user. Channels in
// a non-open state are skipped, never removed; removal happens only through
// explicit close events.
func (r *Registry) Broadcast(userID string, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for ch := range r.channels[userID] {
		if !ch.Open() {
			continue
		}
		ch.Send(payload)
	}
}

// HasOtherOpen reports whether at least one open channel other than
// excluding exists for the user.
func (r *Registry) HasOtherOpen(userID string, excluding Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for ch := range r.channels[userID] {
		if ch == excluding {
			continue
		}
		if ch.Open() {
			return true
		}
	}
	return false
}

// Each visits every registered channel. Used by the liveness sweep.
func (r *Registry) Each(fn func(userID string, ch Channel)) {
	r.mu.RLock()
	snapshot := make(map[string][]Channel, len(r.channels))
	for userID, set := range r.channels {
		chs := make([]Channel, 0, len(set))
		for ch := range set {
			chs = append(chs, ch)
		}
		snapshot[userID] = chs
	}
	r.mu.RUnlock()

	for userID, chs := range snapshot {
		for _, ch := range chs {
			fn(userID, ch)
		}
	}
}
