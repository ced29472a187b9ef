package client

import (
	"context"
	"fmt"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"sync"
	"time"
)

// fakeTransport greets authenticate and answers pings unless told not to.
type fakeTransport struct {
	mu         sync.Mutex
	sent       []domain.Command
	events     chan event.Event
	closed     bool
	answerPing bool
}

func newFakeTransport(answerPing bool) *fakeTransport {
	return &fakeTransport{events: make(chan event.Event, 16), answerPing: answerPing}
}

func (t *fakeTransport) Send(cmd domain.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("closed")
	}
	t.sent = append(t.sent, cmd)
	switch c := cmd.(type) {
	case domain.Authenticate:
		t.events <- event.Connected{UserID: c.UserID, Timestamp: time.Now().UTC()}
	case domain.HeartbeatPing:
		if t.answerPing {
			t.events <- event.HeartbeatPong{Timestamp: time.Now().UTC()}
		}
	}
	return nil
}

func (t *fakeTransport) Events() <-chan event.Event { return t.events }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	return nil
}

func (t *fakeTransport) commands() []domain.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Command(nil), t.sent...)
}

// fakeDialer fails while down is set and records every transport it opened.
type fakeDialer struct {
	mu         sync.Mutex
	down       bool
	attempts   int
	dialedAt   []time.Time
	opened     []*fakeTransport
	answerPing bool
}

func (d *fakeDialer) Dial(context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	d.dialedAt = append(d.dialedAt, time.Now())
	if d.down {
		return nil, fmt.Errorf("connection refused")
	}
	t := newFakeTransport(d.answerPing)
	d.opened = append(d.opened, t)
	return t, nil
}

func (d *fakeDialer) setDown(down bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down = down
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) dialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.dialedAt...)
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[len(d.opened)-1]
}

func (d *fakeDialer) at(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[i]
}

func (d *fakeDialer) openedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opened)
}
