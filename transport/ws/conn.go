package ws

import (
	"log/slog"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"rendezvous/observability"
	"rendezvous/protocol"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is the write side of one WebSocket session.
// Events are queued on a bounded buffer and written by a single goroutine,
// so Send never blocks on a slow peer. A peer whose buffer is full is
// disconnected: it reconnects and catches up from the history.
type Conn struct {
	id           string
	ws           *websocket.Conn
	codec        protocol.Codec
	log          *slog.Logger
	metrics      *observability.Metrics
	writeTimeout time.Duration

	send      chan event.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, codec protocol.Codec, log *slog.Logger, metrics *observability.Metrics,
	sendBuffer int, writeTimeout time.Duration) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:           id,
		ws:           ws,
		codec:        codec,
		log:          log.With("conn_id", id),
		metrics:      metrics,
		writeTimeout: writeTimeout,
		send:         make(chan event.Event, sendBuffer),
		done:         make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Buffered reports how many events wait in the send buffer and its size.
func (c *Conn) Buffered() (int, int) { return len(c.send), cap(c.send) }

func (c *Conn) Send(e event.Event) error {
	select {
	case <-c.done:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case c.send <- e:
		return nil
	default:
		c.log.Warn("Send buffer full, closing slow session", "type", e.Type())
		c.metrics.EventDropped()
		_ = c.Close()
		return errors.ErrSendBufferFull
	}
}

// Close stops the writer, which sends a close frame and releases the socket.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writeLoop owns every write to the socket until the connection is closed.
func (c *Conn) writeLoop() {
	defer func() { _ = c.ws.Close() }()
	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(c.writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		case e := <-c.send:
			if err := writeEvent(c.ws, c.codec, e, c.writeTimeout); err != nil {
				c.log.Debug("Write failed, closing session", "type", e.Type(), "error", err)
				_ = c.Close()
				return
			}
		}
	}
}

func writeEvent(ws *websocket.Conn, codec protocol.Codec, e event.Event, timeout time.Duration) error {
	data, err := protocol.EncodeEvent(codec, e)
	if err != nil {
		return err
	}
	messageType := websocket.TextMessage
	if codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	if err = ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return ws.WriteMessage(messageType, data)
}
