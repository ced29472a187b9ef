package runtime

import (
	"fmt"
	"log/slog"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"rendezvous/observability"
	"sync"
	"time"
)

const DefaultTypingTimeout = 2000 * time.Millisecond

// Typing runs one Idle/Typing state machine per (conversation, user).
// A key is Typing exactly while it has a pending expiry timer.
type Typing struct {
	mu       sync.Mutex
	log      *slog.Logger
	registry *Registry
	rooms    *Rooms
	timeout  time.Duration
	timers   *TimerSet[domain.TypingKey]
	metrics  *observability.Metrics
}

func NewTyping(log *slog.Logger, registry *Registry, rooms *Rooms, timeout time.Duration,
	metrics *observability.Metrics) *Typing {
	t := &Typing{
		log:      log,
		registry: registry,
		rooms:    rooms,
		timeout:  timeout,
		metrics:  metrics,
	}
	t.timers = NewTimerSet[domain.TypingKey](&t.mu)
	return t
}

// Start moves the key to Typing. Only a real Idle -> Typing transition is broadcast,
// repeated starts just push the expiry back.
func (t *Typing) Start(userID domain.UserID, conversationID domain.ConversationID) error {
	if !t.rooms.IsSubscribed(userID, conversationID) {
		return fmt.Errorf("%w: user %d has not joined conversation %d", errors.ErrForbidden, userID, conversationID)
	}
	key := domain.TypingKey{ConversationID: conversationID, UserID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()
	refreshed := t.timers.Schedule(key, t.timeout, func() {
		t.log.Debug("Typing expired", "user_id", userID, "conversation_id", conversationID)
		t.broadcast(key, false)
	})
	if !refreshed {
		t.broadcast(key, true)
	}
	return nil
}

// Stop moves the key back to Idle. Stopping an idle key does nothing.
func (t *Typing) Stop(userID domain.UserID, conversationID domain.ConversationID) {
	key := domain.TypingKey{ConversationID: conversationID, UserID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timers.Cancel(key) {
		t.broadcast(key, false)
	}
}

// StopAll ends every typing state of userID, used when the user goes away.
func (t *Typing) StopAll(userID domain.UserID) {
	t.StopAllUnless(userID, nil)
}

// StopAllUnless is StopAll, skipped when superseded reports true under the typing lock.
func (t *Typing) StopAllUnless(userID domain.UserID, superseded func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if superseded != nil && superseded() {
		return
	}
	keys := t.timers.Keys(func(k domain.TypingKey) bool { return k.UserID == userID })
	for _, key := range keys {
		t.timers.Cancel(key)
		t.broadcast(key, false)
	}
}

// IsTyping reports the current state of a key.
func (t *Typing) IsTyping(userID domain.UserID, conversationID domain.ConversationID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timers.Pending(domain.TypingKey{ConversationID: conversationID, UserID: userID})
}

// Close cancels all pending expiries without broadcasting.
func (t *Typing) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timers.CancelAll()
}

// broadcast must be called with t.mu held.
func (t *Typing) broadcast(key domain.TypingKey, isTyping bool) {
	update := event.TypingUpdate{ConversationID: key.ConversationID, UserID: key.UserID, IsTyping: isTyping}
	for _, subscriber := range t.rooms.Subscribers(key.ConversationID) {
		if subscriber == key.UserID {
			continue
		}
		if err := t.registry.SendTo(subscriber, update); err != nil {
			t.log.Debug("Typing update dropped", "to", subscriber, "error", err)
			t.metrics.EventDropped()
			continue
		}
		t.metrics.TypingDelivered(isTyping)
	}
}
