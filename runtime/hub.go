// Package runtime holds the realtime core: session registry, room subscriptions,
// presence, typing and message fanout, and the hub routing client commands to them.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"rendezvous/contract"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Hub routes the commands of authenticated sessions to the core components.
// Commands of one session are handled one at a time by that session's read loop.
type Hub struct {
	log      *slog.Logger
	registry *Registry
	rooms    *Rooms
	typing   *Typing
	pipeline *FanoutPipeline
	validate *validator.Validate
}

func NewHub(log *slog.Logger, registry *Registry, rooms *Rooms, typing *Typing, pipeline *FanoutPipeline) *Hub {
	return &Hub{
		log:      log,
		registry: registry,
		rooms:    rooms,
		typing:   typing,
		pipeline: pipeline,
		validate: validator.New(),
	}
}

// Connect greets an authenticated transport and registers it.
// The greeting goes first so it precedes any presence update the registration triggers.
func (h *Hub) Connect(userID domain.UserID, conn contract.Conn) *Session {
	if err := conn.Send(event.Connected{UserID: userID, Timestamp: time.Now().UTC()}); err != nil {
		h.log.Debug("Greeting dropped", "user_id", userID, "error", err)
	}
	// Leftovers of a previous session never carry over to this one
	h.typing.StopAll(userID)
	h.rooms.LeaveAll(userID)
	session := h.registry.Register(userID, conn)
	h.log.Info("Session connected", "user_id", userID, "conn_id", conn.ID())
	return session
}

// Disconnect forgets a transport. When it was the user's current session the user's
// typing states are stopped and its room subscriptions dropped, unless a newer session
// registered meanwhile: the offline broadcast may be slow and the user quick to come back.
func (h *Hub) Disconnect(conn contract.Conn) {
	session, current := h.registry.Unregister(conn)
	if session == nil {
		return
	}
	if !current {
		h.log.Debug("Stale session disconnected", "user_id", session.UserID, "conn_id", conn.ID())
		return
	}
	superseded := func() bool {
		_, ok := h.registry.Lookup(session.UserID)
		return ok
	}
	h.typing.StopAllUnless(session.UserID, superseded)
	left, cleaned := h.rooms.LeaveAllUnless(session.UserID, superseded)
	if !cleaned {
		h.log.Info("Session disconnected, newer session kept", "user_id", session.UserID, "conn_id", conn.ID())
		return
	}
	h.log.Info("Session disconnected", "user_id", session.UserID, "conn_id", conn.ID(), "rooms_left", len(left))
}

// Handle processes one command of session to completion.
func (h *Hub) Handle(ctx context.Context, session *Session, cmd domain.Command) {
	if err := h.validate.Struct(cmd); err != nil {
		h.log.Info("Invalid command", "user_id", session.UserID, "type", cmd.Type(), "error", err)
		h.reject(session, cmd, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err))
		return
	}

	switch c := cmd.(type) {
	case domain.RoomJoin:
		if err := h.rooms.Join(ctx, session.UserID, c.ConversationID); err != nil {
			h.log.Info("Join refused", "user_id", session.UserID, "conversation_id", c.ConversationID, "error", err)
			h.reply(session, event.RoomError{ConversationID: c.ConversationID, Error: errors.Code(err)})
			return
		}
		h.reply(session, event.RoomJoined{ConversationID: c.ConversationID})
	case domain.RoomLeave:
		h.typing.Stop(session.UserID, c.ConversationID)
		h.rooms.Leave(session.UserID, c.ConversationID)
		h.reply(session, event.RoomLeft{ConversationID: c.ConversationID})
	case domain.TypingStart:
		if err := h.typing.Start(session.UserID, c.ConversationID); err != nil {
			h.log.Info("Typing refused", "user_id", session.UserID, "conversation_id", c.ConversationID, "error", err)
		}
	case domain.TypingStop:
		h.typing.Stop(session.UserID, c.ConversationID)
	case domain.MessageSend:
		// The pipeline already reported the failure to the sender
		_, _ = h.pipeline.Send(ctx, session, c.ConversationID, c.Content)
	case domain.HeartbeatPing:
		h.reply(session, event.HeartbeatPong{Timestamp: time.Now().UTC()})
	case domain.Authenticate:
		h.log.Debug("Already authenticated, ignoring", "user_id", session.UserID)
	default:
		h.log.Warn("Unhandled command", "user_id", session.UserID, "type", cmd.Type())
	}
}

// Close stops pending typing expiries and closes every session.
func (h *Hub) Close() {
	h.typing.Close()
	h.registry.CloseAll()
}

func (h *Hub) reject(session *Session, cmd domain.Command, err error) {
	switch c := cmd.(type) {
	case domain.MessageSend:
		h.reply(session, event.MessageError{ConversationID: c.ConversationID, Error: errors.Code(err)})
	case domain.RoomJoin:
		h.reply(session, event.RoomError{ConversationID: c.ConversationID, Error: errors.Code(err)})
	}
}

func (h *Hub) reply(session *Session, e event.Event) {
	if err := session.Send(e); err != nil {
		h.log.Debug("Reply dropped", "user_id", session.UserID, "type", e.Type(), "error", err)
	}
}
