package main

import (
	"fmt"
	"io"
	"rendezvous/client"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"sync"
	"time"

	"github.com/gookit/color"
)

// renderer prints server events. Events arrive from the client goroutine
// while the shell prints from the input loop.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	self    domain.UserID
	colours bool
}

func newRenderer(out io.Writer, self domain.UserID, colours bool) *renderer {
	return &renderer{out: out, self: self, colours: colours}
}

func (r *renderer) print(style color.Style, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if r.colours {
		line = style.Render(line)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, line)
}

func (r *renderer) Event(e event.Event) {
	switch e := e.(type) {
	case event.Connected:
		r.print(color.New(color.FgGreen), "connected as %d", e.UserID)
	case event.MessageNew:
		r.message(e)
	case event.MessageSent:
		r.print(color.New(color.FgGray), "[%d] sent", e.ConversationID)
	case event.MessageError:
		r.print(color.New(color.FgRed), "[%d] not sent: %s", e.ConversationID, e.Error)
	case event.PresenceUpdate:
		state := "offline"
		if e.IsOnline {
			state = "online"
		}
		r.print(color.New(color.FgYellow), "user %d is %s", e.UserID, state)
	case event.TypingUpdate:
		if e.UserID == r.self {
			return
		}
		if e.IsTyping {
			r.print(color.New(color.FgGray), "[%d] user %d is typing...", e.ConversationID, e.UserID)
		}
	case event.RoomJoined:
		r.print(color.New(color.FgCyan), "joined conversation %d", e.ConversationID)
	case event.RoomLeft:
		r.print(color.New(color.FgCyan), "left conversation %d", e.ConversationID)
	case event.RoomError:
		r.print(color.New(color.FgRed), "conversation %d: %s", e.ConversationID, e.Error)
	case event.Error:
		r.print(color.New(color.FgRed), "server error: %s", e.Error)
	}
}

func (r *renderer) message(m event.MessageNew) {
	style := color.New(color.FgWhite)
	if m.SenderID == r.self {
		style = color.New(color.FgBlue)
	}
	r.print(style, "[%d] %s user %d: %s", m.ConversationID, m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
}

// History prints a page oldest first. Pages come newest first.
func (r *renderer) History(page messagesPage) {
	for i := len(page.Messages) - 1; i >= 0; i-- {
		r.message(page.Messages[i])
	}
	if page.NextCursor != nil {
		r.Info("older messages: /history " + *page.NextCursor)
	}
}

func (r *renderer) State(state client.State) {
	style := color.New(color.FgYellow)
	if state == client.StateFailed {
		style = color.New(color.FgRed, color.OpBold)
		r.print(style, "connection %s, type /reset to try again", state)
		return
	}
	r.print(style, "connection %s", state)
}

func (r *renderer) Info(text string) {
	r.print(color.New(color.FgGray), "%s", text)
}

func (r *renderer) Failure(err error) {
	r.print(color.New(color.FgRed), "error: %v", err)
}
