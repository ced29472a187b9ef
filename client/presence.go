package client

import (
	"rendezvous/domain"
	"rendezvous/domain/event"
	"sync"
)

// PresenceTracker keeps the last known presence of every partner.
// Updates older than the one already known are discarded, so a late
// "online" can never hide a newer "offline".
type PresenceTracker struct {
	mu    sync.RWMutex
	known map[domain.UserID]event.PresenceUpdate
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{known: make(map[domain.UserID]event.PresenceUpdate)}
}

// Apply records update and reports whether it was newer than what was known.
func (p *PresenceTracker) Apply(update event.PresenceUpdate) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.known[update.UserID]; ok && !update.Timestamp.After(current.Timestamp) {
		return false
	}
	p.known[update.UserID] = update
	return true
}

// Observe is meant to be passed to Client.Subscribe.
func (p *PresenceTracker) Observe(e event.Event) {
	if update, ok := e.(event.PresenceUpdate); ok {
		p.Apply(update)
	}
}

func (p *PresenceTracker) IsOnline(userID domain.UserID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.known[userID].IsOnline
}
