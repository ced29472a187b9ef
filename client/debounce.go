package client

import (
	"rendezvous/domain"
	"sync"
	"time"
)

const DefaultTypingDebounce = 2000 * time.Millisecond

// TypingDebouncer turns keystrokes in one conversation into typing:start and
// typing:stop commands. A burst of input emits one start, and one stop once
// the input pauses for the timeout. No stop is ever emitted without a start.
type TypingDebouncer struct {
	mu             sync.Mutex
	conversationID domain.ConversationID
	timeout        time.Duration
	emit           func(domain.Command)
	inBurst        bool
	timer          *time.Timer
	gen            uint64
}

func NewTypingDebouncer(conversationID domain.ConversationID, timeout time.Duration, emit func(domain.Command)) *TypingDebouncer {
	return &TypingDebouncer{conversationID: conversationID, timeout: timeout, emit: emit}
}

// Input records a keystroke.
func (d *TypingDebouncer) Input() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inBurst {
		d.inBurst = true
		d.emit(domain.TypingStart{ConversationID: d.conversationID})
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.timeout, func() { d.expire(gen) })
}

// Flush ends the burst now, typically because the message was sent.
func (d *TypingDebouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stop()
}

func (d *TypingDebouncer) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// A newer keystroke re-armed the timer
	if gen != d.gen {
		return
	}
	d.stop()
}

func (d *TypingDebouncer) stop() {
	if !d.inBurst {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.inBurst = false
	d.emit(domain.TypingStop{ConversationID: d.conversationID})
}
