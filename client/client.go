// Package client is the client side of rendezvous: a connection that survives
// transport loss, typing debounce, presence tracking and draft keeping.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"sync"
	"time"
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type Config struct {
	UserID            domain.UserID
	Token             string
	MaxAttempts       int
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration
	HeartbeatGrace    time.Duration
	HandshakeTimeout  time.Duration
}

func DefaultConfig(userID domain.UserID) Config {
	return Config{
		UserID:            userID,
		MaxAttempts:       5,
		RetryDelay:        1000 * time.Millisecond,
		HeartbeatInterval: 30000 * time.Millisecond,
		HeartbeatGrace:    10000 * time.Millisecond,
		HandshakeTimeout:  10 * time.Second,
	}
}

// Client keeps a session to the server alive.
//
// Connected -> Reconnecting on transport loss or a missed heartbeat:pong.
// Reconnecting -> Connected on success, or -> Failed after MaxAttempts
// consecutive failures. Failed stays put until Reset. After every
// reconnection the client authenticates again and rejoins its rooms.
type Client struct {
	log    *slog.Logger
	dialer Dialer
	config Config

	mu        sync.Mutex
	state     State
	transport Transport
	rooms     map[domain.ConversationID]struct{}

	events subscribers[event.Event]
	states subscribers[State]

	reset     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(log *slog.Logger, dialer Dialer, config Config) *Client {
	return &Client{
		log:    log.With("user_id", config.UserID),
		dialer: dialer,
		config: config,
		rooms:  make(map[domain.ConversationID]struct{}),
		reset:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Connect opens the first session. From then on the client reconnects by itself
// until ctx ends or Close is called.
func (c *Client) Connect(ctx context.Context) error {
	t, err := c.open(ctx)
	if err != nil {
		return err
	}
	c.setConnected(t)
	c.wg.Add(1)
	go c.run(ctx, t)
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every server event. The returned func unsubscribes
// and may be called any number of times.
func (c *Client) Subscribe(fn func(event.Event)) func() {
	return c.events.add(fn)
}

// OnStateChange registers fn for every state transition.
func (c *Client) OnStateChange(fn func(State)) func() {
	return c.states.add(fn)
}

// Send pushes a command on the current session.
func (c *Client) Send(cmd domain.Command) error {
	c.mu.Lock()
	t, state := c.transport, c.state
	c.mu.Unlock()
	if t == nil || state != StateConnected {
		return fmt.Errorf("%w: client is %s", errors.ErrTransportLoss, state)
	}
	return t.Send(cmd)
}

// Join subscribes to a conversation room, now and after every reconnection.
func (c *Client) Join(conversationID domain.ConversationID) error {
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.mu.Unlock()
	return c.Send(domain.RoomJoin{ConversationID: conversationID})
}

func (c *Client) Leave(conversationID domain.ConversationID) error {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
	return c.Send(domain.RoomLeave{ConversationID: conversationID})
}

// Reset restarts reconnection after the client gave up. It reports whether the
// client was Failed.
func (c *Client) Reset() bool {
	if c.State() != StateFailed {
		return false
	}
	select {
	case c.reset <- struct{}{}:
	default:
	}
	return true
}

// Close ends the session and stops reconnecting.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t != nil {
		_ = t.Close()
	}
	c.wg.Wait()
	c.setState(StateDisconnected, nil)
	return nil
}

func (c *Client) run(ctx context.Context, t Transport) {
	defer c.wg.Done()
	for {
		err := c.session(ctx, t)
		_ = t.Close()
		if err == nil {
			return
		}
		c.log.Warn("Connection lost", "error", err)

		for t = c.reconnect(ctx); t == nil; t = c.reconnect(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-c.reset:
				c.log.Info("Reconnection reset")
			}
		}
	}
}

// session pumps events of one transport until it is lost. It returns nil when
// the client is shutting down.
func (c *Client) session(ctx context.Context, t Transport) error {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()
	var pongDeadline <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case e, ok := <-t.Events():
			if !ok {
				return errors.ErrTransportLoss
			}
			if _, pong := e.(event.HeartbeatPong); pong {
				pongDeadline = nil
			}
			c.events.notify(e)
		case <-ticker.C:
			if pongDeadline != nil {
				continue
			}
			if err := t.Send(domain.HeartbeatPing{}); err != nil {
				return fmt.Errorf("%w: %v", errors.ErrTransportLoss, err)
			}
			pongDeadline = time.After(c.config.HeartbeatGrace)
		case <-pongDeadline:
			return fmt.Errorf("%w: no heartbeat:pong within %s", errors.ErrTransportLoss, c.config.HeartbeatGrace)
		}
	}
}

// reconnect tries MaxAttempts times and returns the new transport, or nil
// once the client is Failed or shutting down.
func (c *Client) reconnect(ctx context.Context) Transport {
	c.setState(StateReconnecting, nil)
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-time.After(c.config.RetryDelay):
		}

		t, err := c.open(ctx)
		if err != nil {
			c.log.Info("Reconnection attempt failed", "attempt", attempt, "error", err)
			continue
		}
		c.mu.Lock()
		rooms := make([]domain.ConversationID, 0, len(c.rooms))
		for id := range c.rooms {
			rooms = append(rooms, id)
		}
		c.mu.Unlock()
		for _, id := range rooms {
			if err := t.Send(domain.RoomJoin{ConversationID: id}); err != nil {
				c.log.Warn("Rejoin failed", "conversation_id", id, "error", err)
			}
		}
		c.setConnected(t)
		return t
	}
	c.log.Error("Giving up reconnection", "attempts", c.config.MaxAttempts)
	c.setState(StateFailed, nil)
	return nil
}

// open dials and authenticates. The server answers connected or error.
func (c *Client) open(ctx context.Context) (Transport, error) {
	t, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if err = t.Send(domain.Authenticate{UserID: c.config.UserID, Token: c.config.Token}); err != nil {
		_ = t.Close()
		return nil, err
	}
	timeout := time.NewTimer(c.config.HandshakeTimeout)
	defer timeout.Stop()
	select {
	case e, ok := <-t.Events():
		switch greeting := e.(type) {
		case event.Connected:
			c.events.notify(greeting)
			return t, nil
		case event.Error:
			_ = t.Close()
			return nil, fmt.Errorf("%w: %s", errors.ErrUnauthenticated, greeting.Error)
		default:
			_ = t.Close()
			if !ok {
				return nil, errors.ErrTransportLoss
			}
			return nil, fmt.Errorf("%w: unexpected %s before connected", errors.ErrTransportLoss, e.Type())
		}
	case <-timeout.C:
		_ = t.Close()
		return nil, fmt.Errorf("%w: no answer to authenticate", errors.ErrTransportLoss)
	case <-ctx.Done():
		_ = t.Close()
		return nil, ctx.Err()
	}
}

func (c *Client) setConnected(t Transport) {
	c.setState(StateConnected, t)
}

func (c *Client) setState(state State, t Transport) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.transport = t
	c.mu.Unlock()
	if changed {
		c.log.Info("Connection state", "state", state)
		c.states.notify(state)
	}
}
