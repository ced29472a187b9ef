package runtime

import (
	"context"
	"log/slog"
	"rendezvous/contract"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
)

// recordingConn keeps every event pushed to it.
type recordingConn struct {
	id     string
	mu     sync.Mutex
	events []event.Event
	closed bool
}

func newRecordingConn() *recordingConn {
	return &recordingConn{id: uuid.NewString()}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrSessionClosed
	}
	c.events = append(c.events, e)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func eventsOf[T event.Event](c *recordingConn) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, e := range c.events {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// staticConversations is an in-memory conversation store.
type staticConversations struct {
	conversations []domain.Conversation
}

func newStaticConversations(conversations ...domain.Conversation) *staticConversations {
	return &staticConversations{conversations: conversations}
}

func (s *staticConversations) GetPartners(_ context.Context, userID domain.UserID) ([]domain.Partner, error) {
	var partners []domain.Partner
	for _, c := range s.conversations {
		if other, ok := c.Other(userID); ok {
			partners = append(partners, domain.Partner{ConversationID: c.ID, OtherUserID: other})
		}
	}
	return partners, nil
}

func (s *staticConversations) IsParticipant(_ context.Context, userID domain.UserID, conversationID domain.ConversationID) (bool, error) {
	for _, c := range s.conversations {
		if c.ID == conversationID {
			return c.Has(userID), nil
		}
	}
	return false, nil
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// core wires the components the way main does, with a short typing timeout.
type core struct {
	registry *Registry
	rooms    *Rooms
	typing   *Typing
	presence *PresenceBroadcaster
	hub      *Hub
}

func newCore(t *testing.T, store contract.ConversationStore, messages contract.MessageStore, typingTimeout time.Duration) core {
	t.Helper()
	log := testLogger()
	registry := NewRegistry(log, nil)
	presence := NewPresenceBroadcaster(log, registry, store, time.Second, nil)
	registry.Notify(presence)
	rooms := NewRooms(log, store)
	typing := NewTyping(log, registry, rooms, typingTimeout, nil)
	pipeline := NewFanoutPipeline(log, registry, store, messages, DefaultMaxContentLength, nil)
	hub := NewHub(log, registry, rooms, typing, pipeline)
	t.Cleanup(hub.Close)
	return core{registry: registry, rooms: rooms, typing: typing, presence: presence, hub: hub}
}

// memoryMessages is a message store keeping messages in call order.
type memoryMessages struct {
	mu       sync.Mutex
	messages []domain.Message
	err      error
}

func (m *memoryMessages) Persist(_ context.Context, conversationID domain.ConversationID, senderID domain.UserID, content string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Message{}, m.err
	}
	msg := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}
