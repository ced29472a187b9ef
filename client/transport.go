package client

import (
	"context"
	"log/slog"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/protocol"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one live connection to the server.
type Transport interface {
	Send(cmd domain.Command) error
	// Events is closed when the connection is lost.
	Events() <-chan event.Event
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// WebSocketDialer opens transports to a rendezvous server.
type WebSocketDialer struct {
	log          *slog.Logger
	url          string
	msgpack      bool
	writeTimeout time.Duration
}

func NewWebSocketDialer(log *slog.Logger, url string, msgpack bool) *WebSocketDialer {
	return &WebSocketDialer{log: log, url: url, msgpack: msgpack, writeTimeout: 10 * time.Second}
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if d.msgpack {
		dialer.Subprotocols = []string{protocol.SubprotocolMsgpack}
	}
	socket, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, err
	}
	t := &wsTransport{
		log:          d.log,
		ws:           socket,
		codec:        protocol.ForSubprotocol(socket.Subprotocol()),
		writeTimeout: d.writeTimeout,
		events:       make(chan event.Event, 64),
		done:         make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

type wsTransport struct {
	log          *slog.Logger
	ws           *websocket.Conn
	codec        protocol.Codec
	writeTimeout time.Duration
	events       chan event.Event
	done         chan struct{}
	closeOnce    sync.Once
	writeMu      sync.Mutex
}

func (t *wsTransport) Send(cmd domain.Command) error {
	data, err := protocol.EncodeCommand(t.codec, cmd)
	if err != nil {
		return err
	}
	messageType := websocket.TextMessage
	if t.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err = t.ws.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.ws.WriteMessage(messageType, data)
}

func (t *wsTransport) Events() <-chan event.Event { return t.events }

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return t.ws.Close()
}

func (t *wsTransport) readLoop() {
	defer close(t.events)
	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			t.log.Debug("Connection lost", "error", err)
			return
		}
		e, err := protocol.DecodeEvent(t.codec, data)
		if err != nil {
			t.log.Warn("Undecodable event", "error", err)
			continue
		}
		select {
		case t.events <- e:
		case <-t.done:
			return
		}
	}
}
