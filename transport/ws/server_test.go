package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"rendezvous/auth"
	"rendezvous/contract"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"rendezvous/protocol"
	"rendezvous/repositories"
	"rendezvous/runtime"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	url           string
	conversations *repositories.ConversationRepository
	hub           *runtime.Hub
	server        *Server
	registry      *runtime.Registry
}

func newFixture(t *testing.T, resolver contract.IdentityResolver, config Config) fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	conversations, err := repositories.NewConversationRepository(db)
	require.NoError(t, err)
	messages := repositories.NewMessageRepository(db, log, 50)

	registry := runtime.NewRegistry(log, nil)
	registry.Notify(runtime.NewPresenceBroadcaster(log, registry, conversations, time.Second, nil))
	rooms := runtime.NewRooms(log, conversations)
	typing := runtime.NewTyping(log, registry, rooms, runtime.DefaultTypingTimeout, nil)
	pipeline := runtime.NewFanoutPipeline(log, registry, conversations, messages, runtime.DefaultMaxContentLength, nil)
	hub := runtime.NewHub(log, registry, rooms, typing, pipeline)

	wsServer := NewServer(log, hub, resolver, nil, config)
	server := httptest.NewServer(wsServer)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
		_ = conversations.Close()
		_ = db.Close()
	})
	return fixture{
		url:           "ws" + strings.TrimPrefix(server.URL, "http"),
		conversations: conversations,
		hub:           hub,
		server:        wsServer,
		registry:      registry,
	}
}

type peer struct {
	t     *testing.T
	ws    *websocket.Conn
	codec protocol.Codec
}

func dial(t *testing.T, url string, subprotocols ...string) *peer {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: time.Second, Subprotocols: subprotocols}
	socket, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = socket.Close() })
	return &peer{t: t, ws: socket, codec: protocol.ForSubprotocol(socket.Subprotocol())}
}

func (p *peer) send(cmd domain.Command) {
	p.t.Helper()
	data, err := protocol.EncodeCommand(p.codec, cmd)
	require.NoError(p.t, err)
	messageType := websocket.TextMessage
	if p.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	require.NoError(p.t, p.ws.WriteMessage(messageType, data))
}

func (p *peer) next() event.Event {
	p.t.Helper()
	require.NoError(p.t, p.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := p.ws.ReadMessage()
	require.NoError(p.t, err)
	e, err := protocol.DecodeEvent(p.codec, data)
	require.NoError(p.t, err)
	return e
}

// expect reads the next event and requires it to be a T.
func expect[T event.Event](p *peer) T {
	p.t.Helper()
	e := p.next()
	typed, ok := e.(T)
	require.True(p.t, ok, "got %s (%+v)", e.Type(), e)
	return typed
}

func (p *peer) login(userID domain.UserID) event.Connected {
	p.t.Helper()
	p.send(domain.Authenticate{UserID: userID})
	return expect[event.Connected](p)
}

func TestServer_Two_Users_Scenario(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, auth.TrustResolver{}, DefaultConfig())
	conversation, _, err := f.conversations.CreateConversation(context.Background(), 1, 2)
	req.NoError(err)
	conversationID := conversation.ID

	// Given A and B online
	alice := dial(t, f.url)
	req.Equal(domain.UserID(1), alice.login(1).UserID)
	bob := dial(t, f.url)
	bob.login(2)

	// Then each learns the other is online
	seenByBob := expect[event.PresenceUpdate](bob)
	req.Equal(domain.UserID(1), seenByBob.UserID)
	req.True(seenByBob.IsOnline)
	seenByAlice := expect[event.PresenceUpdate](alice)
	req.Equal(domain.UserID(2), seenByAlice.UserID)
	req.True(seenByAlice.IsOnline)

	// Given both joined the conversation room
	alice.send(domain.RoomJoin{ConversationID: conversationID})
	req.Equal(conversationID, expect[event.RoomJoined](alice).ConversationID)
	bob.send(domain.RoomJoin{ConversationID: conversationID})
	req.Equal(conversationID, expect[event.RoomJoined](bob).ConversationID)

	// When A types then stops
	alice.send(domain.TypingStart{ConversationID: conversationID})
	req.Equal(event.TypingUpdate{ConversationID: conversationID, UserID: 1, IsTyping: true}, expect[event.TypingUpdate](bob))
	alice.send(domain.TypingStop{ConversationID: conversationID})
	req.Equal(event.TypingUpdate{ConversationID: conversationID, UserID: 1, IsTyping: false}, expect[event.TypingUpdate](bob))

	// When A sends a message
	alice.send(domain.MessageSend{ConversationID: conversationID, Content: "Hi Bob"})

	// Then B receives it and A is acknowledged
	received := expect[event.MessageNew](bob)
	req.Equal("Hi Bob", received.Content)
	req.Equal(domain.UserID(1), received.SenderID)
	req.NotEmpty(received.ID)
	req.Equal(event.MessageSent{ConversationID: conversationID, Success: true}, expect[event.MessageSent](alice))

	// When A goes away
	req.NoError(alice.ws.Close())

	// Then B is told exactly once
	offline := expect[event.PresenceUpdate](bob)
	req.Equal(domain.UserID(1), offline.UserID)
	req.False(offline.IsOnline)
	req.True(offline.Timestamp.After(seenByBob.Timestamp))
}

func TestServer_Message_Errors_Go_To_Sender(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, auth.TrustResolver{}, DefaultConfig())
	conversation, _, err := f.conversations.CreateConversation(context.Background(), 1, 2)
	req.NoError(err)

	mallory := dial(t, f.url)
	mallory.login(3)

	mallory.send(domain.MessageSend{ConversationID: conversation.ID, Content: "let me in"})
	req.Equal(event.MessageError{ConversationID: conversation.ID, Error: errors.CodeForbidden}, expect[event.MessageError](mallory))

	mallory.send(domain.MessageSend{ConversationID: conversation.ID, Content: "   "})
	req.Equal(event.MessageError{ConversationID: conversation.ID, Error: errors.CodeInvalidInput}, expect[event.MessageError](mallory))

	mallory.send(domain.RoomJoin{ConversationID: conversation.ID})
	req.Equal(errors.CodeForbidden, expect[event.RoomError](mallory).Error)
}

func TestServer_First_Frame_Must_Authenticate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, auth.TrustResolver{}, DefaultConfig())
	p := dial(t, f.url)

	p.send(domain.HeartbeatPing{})

	req.Equal(event.Error{Error: errors.CodeUnauthenticated}, expect[event.Error](p))
	_, _, err := p.ws.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestServer_Invalid_Token_Is_Rejected(t *testing.T) {
	req := require.New(t)
	tokens := auth.NewTokens("test_secret_long_enough_for_hs256", time.Hour)
	f := newFixture(t, auth.NewTokenResolver(tokens), DefaultConfig())

	rejected := dial(t, f.url)
	rejected.send(domain.Authenticate{UserID: 1, Token: "forged"})
	req.Equal(errors.CodeUnauthenticated, expect[event.Error](rejected).Error)

	token, err := tokens.Generate(1)
	req.NoError(err)
	accepted := dial(t, f.url)
	accepted.send(domain.Authenticate{Token: token})
	req.Equal(domain.UserID(1), expect[event.Connected](accepted).UserID)
}

func TestServer_Silent_Handshake_Times_Out(t *testing.T) {
	req := require.New(t)
	config := DefaultConfig()
	config.HandshakeTimeout = 50 * time.Millisecond
	f := newFixture(t, auth.TrustResolver{}, config)
	p := dial(t, f.url)

	req.Equal(errors.CodeUnauthenticated, expect[event.Error](p).Error)
}

func TestServer_Idle_Session_Is_Closed(t *testing.T) {
	req := require.New(t)
	config := DefaultConfig()
	config.ReadTimeout = 100 * time.Millisecond
	f := newFixture(t, auth.TrustResolver{}, config)
	p := dial(t, f.url)
	p.login(1)

	// Then the server closes the session well before the client gives up
	req.NoError(p.ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := p.ws.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServer_Second_Login_Evicts_First(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, auth.TrustResolver{}, DefaultConfig())
	first := dial(t, f.url)
	first.login(1)

	second := dial(t, f.url)
	second.login(1)

	req.NoError(first.ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := first.ws.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	second.send(domain.HeartbeatPing{})
	expect[event.HeartbeatPong](second)
}

func TestServer_Msgpack_Subprotocol(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, auth.TrustResolver{}, DefaultConfig())

	p := dial(t, f.url, protocol.SubprotocolMsgpack)
	req.Equal(protocol.SubprotocolMsgpack, p.ws.Subprotocol())
	p.login(1)
	p.send(domain.HeartbeatPing{})

	messageType, data, err := p.ws.ReadMessage()
	req.NoError(err)
	req.Equal(websocket.BinaryMessage, messageType)
	e, err := protocol.DecodeEvent(protocol.MsgpackCodec{}, data)
	req.NoError(err)
	req.IsType(event.HeartbeatPong{}, e)
}

func TestServer_Undecodable_Frame(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, auth.TrustResolver{}, DefaultConfig())
	p := dial(t, f.url)
	p.login(1)

	req.NoError(p.ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance","payload":{}}`)))

	req.Equal(errors.CodeInvalidInput, expect[event.Error](p).Error)
	p.send(domain.HeartbeatPing{})
	expect[event.HeartbeatPong](p)
}

func TestServer_Rejects_Plain_HTTP(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, auth.TrustResolver{}, DefaultConfig())

	resp, err := http.Get("http" + strings.TrimPrefix(f.url, "ws"))
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Shutdown_Drains_Sessions(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, auth.TrustResolver{}, DefaultConfig())
	p := dial(t, f.url)
	p.login(1)

	// When the server shuts down
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(f.server.Shutdown(ctx))

	// Then the live session was closed before Shutdown returned
	req.NoError(p.ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := p.ws.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	_, online := f.registry.Lookup(1)
	req.False(online)

	// And new connections are turned away
	dialer := websocket.Dialer{HandshakeTimeout: time.Second}
	_, resp, err := dialer.Dial(f.url, nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}
