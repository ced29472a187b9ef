package runtime

import (
	"context"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHub_Connect_Greets_Session(t *testing.T) {
	req := require.New(t)
	c := newCore(t, pair(), &memoryMessages{}, time.Second)
	alice := newRecordingConn()

	bob := newRecordingConn()
	c.hub.Connect(2, bob)

	c.hub.Connect(1, alice)

	// Then the greeting comes before the partner snapshot
	alice.mu.Lock()
	defer alice.mu.Unlock()
	req.Len(alice.events, 2)
	req.Equal(event.Connected{UserID: 1, Timestamp: alice.events[0].(event.Connected).Timestamp}, alice.events[0])
	req.IsType(event.PresenceUpdate{}, alice.events[1])
}

func TestHub_Heartbeat_Ping_Gets_Pong(t *testing.T) {
	req := require.New(t)
	c := newCore(t, pair(), &memoryMessages{}, time.Second)
	alice := newRecordingConn()
	session := c.hub.Connect(1, alice)

	c.hub.Handle(context.Background(), session, domain.HeartbeatPing{})

	req.Len(eventsOf[event.HeartbeatPong](alice), 1)
}

func TestHub_Room_Join_And_Leave(t *testing.T) {
	req := require.New(t)
	c := newCore(t, pair(), &memoryMessages{}, time.Second)
	alice := newRecordingConn()
	session := c.hub.Connect(1, alice)

	c.hub.Handle(context.Background(), session, domain.RoomJoin{ConversationID: 100})
	req.Equal([]event.RoomJoined{{ConversationID: 100}}, eventsOf[event.RoomJoined](alice))
	req.True(c.rooms.IsSubscribed(1, 100))

	c.hub.Handle(context.Background(), session, domain.RoomLeave{ConversationID: 100})
	req.Equal([]event.RoomLeft{{ConversationID: 100}}, eventsOf[event.RoomLeft](alice))
	req.False(c.rooms.IsSubscribed(1, 100))
}

func TestHub_Room_Join_Of_Foreign_Conversation(t *testing.T) {
	req := require.New(t)
	c := newCore(t, pair(), &memoryMessages{}, time.Second)
	mallory := newRecordingConn()
	session := c.hub.Connect(3, mallory)

	c.hub.Handle(context.Background(), session, domain.RoomJoin{ConversationID: 100})

	req.Equal([]event.RoomError{{ConversationID: 100, Error: errors.CodeForbidden}}, eventsOf[event.RoomError](mallory))
	req.False(c.rooms.IsSubscribed(3, 100))
}

func TestHub_Missing_Conversation_Is_Invalid_Input(t *testing.T) {
	req := require.New(t)
	c := newCore(t, pair(), &memoryMessages{}, time.Second)
	alice := newRecordingConn()
	session := c.hub.Connect(1, alice)

	c.hub.Handle(context.Background(), session, domain.MessageSend{Content: "hello"})

	req.Equal([]event.MessageError{{Error: errors.CodeInvalidInput}}, eventsOf[event.MessageError](alice))
}

func TestHub_Typing_Commands_Reach_Room(t *testing.T) {
	req := require.New(t)
	c := newCore(t, pair(), &memoryMessages{}, time.Second)
	alice := newRecordingConn()
	bob := newRecordingConn()
	aliceSession := c.hub.Connect(1, alice)
	bobSession := c.hub.Connect(2, bob)
	c.hub.Handle(context.Background(), aliceSession, domain.RoomJoin{ConversationID: 100})
	c.hub.Handle(context.Background(), bobSession, domain.RoomJoin{ConversationID: 100})

	c.hub.Handle(context.Background(), aliceSession, domain.TypingStart{ConversationID: 100})
	c.hub.Handle(context.Background(), aliceSession, domain.TypingStop{ConversationID: 100})

	req.Equal([]event.TypingUpdate{
		{ConversationID: 100, UserID: 1, IsTyping: true},
		{ConversationID: 100, UserID: 1, IsTyping: false},
	}, eventsOf[event.TypingUpdate](bob))
}

func TestHub_Evicted_Session_Disconnect_Keeps_New_One(t *testing.T) {
	req := require.New(t)
	c := newCore(t, pair(), &memoryMessages{}, time.Second)
	bob := newRecordingConn()
	c.hub.Connect(2, bob)
	first := newRecordingConn()
	c.hub.Connect(1, first)
	second := newRecordingConn()
	session := c.hub.Connect(1, second)
	c.hub.Handle(context.Background(), session, domain.RoomJoin{ConversationID: 100})
	bob.reset()

	// When the evicted transport finally reports its disconnect
	c.hub.Disconnect(first)

	// Then A stays online and subscribed, and B hears nothing
	req.True(first.isClosed())
	current, ok := c.registry.Lookup(1)
	req.True(ok)
	req.Equal(second.ID(), current.Conn.ID())
	req.True(c.rooms.IsSubscribed(1, 100))
	req.Empty(eventsOf[event.PresenceUpdate](bob))
}

// stallingConversations holds the next partner lookup until released.
type stallingConversations struct {
	*staticConversations
	mu       sync.Mutex
	armed    bool
	entered  chan struct{}
	released chan struct{}
}

func newStallingConversations(store *staticConversations) *stallingConversations {
	return &stallingConversations{
		staticConversations: store,
		entered:             make(chan struct{}),
		released:            make(chan struct{}),
	}
}

func (s *stallingConversations) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
}

func (s *stallingConversations) GetPartners(ctx context.Context, userID domain.UserID) ([]domain.Partner, error) {
	s.mu.Lock()
	stall := s.armed
	s.armed = false
	s.mu.Unlock()
	if stall {
		close(s.entered)
		select {
		case <-s.released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.staticConversations.GetPartners(ctx, userID)
}

func TestHub_Slow_Disconnect_Keeps_Rejoined_Rooms(t *testing.T) {
	req := require.New(t)
	store := newStallingConversations(pair())
	c := newCore(t, store, &memoryMessages{}, time.Second)
	bob := newRecordingConn()
	bobSession := c.hub.Connect(2, bob)
	c.hub.Handle(context.Background(), bobSession, domain.RoomJoin{ConversationID: 100})
	old := newRecordingConn()
	c.hub.Connect(1, old)

	// Given the offline broadcast of A's old session is stuck on the store
	store.arm()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.hub.Disconnect(old)
	}()
	<-store.entered

	// When A reconnects and rejoins before the old disconnect completes
	fresh := newRecordingConn()
	session := c.hub.Connect(1, fresh)
	c.hub.Handle(context.Background(), session, domain.RoomJoin{ConversationID: 100})
	c.hub.Handle(context.Background(), session, domain.TypingStart{ConversationID: 100})
	close(store.released)
	<-done

	// Then the new session keeps its room and its typing state
	current, ok := c.registry.Lookup(1)
	req.True(ok)
	req.Equal(fresh.ID(), current.Conn.ID())
	req.True(c.rooms.IsSubscribed(1, 100))
	req.True(c.typing.IsTyping(1, 100))
	bob.reset()
	c.hub.Handle(context.Background(), session, domain.TypingStop{ConversationID: 100})
	req.Equal([]event.TypingUpdate{{ConversationID: 100, UserID: 1, IsTyping: false}}, eventsOf[event.TypingUpdate](bob))
}

func TestHub_Reconnect_Starts_Without_Stale_Rooms(t *testing.T) {
	req := require.New(t)
	c := newCore(t, pair(), &memoryMessages{}, time.Second)
	first := newRecordingConn()
	session := c.hub.Connect(1, first)
	c.hub.Handle(context.Background(), session, domain.RoomJoin{ConversationID: 100})

	// When a new transport replaces the first one
	c.hub.Connect(1, newRecordingConn())

	// Then the subscription must be re-issued
	req.False(c.rooms.IsSubscribed(1, 100))
}
