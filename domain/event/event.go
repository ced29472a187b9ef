// Package event defines the outbound events the server pushes to sessions.
package event

import (
	"rendezvous/domain"
	"time"
)

type Event interface {
	Type() string
}

const (
	TypeConnected      = "connected"
	TypePresenceUpdate = "presence:update"
	TypeTypingUpdate   = "typing:update"
	TypeMessageNew     = "message:new"
	TypeMessageSent    = "message:sent"
	TypeMessageError   = "message:error"
	TypeRoomJoined     = "room:joined"
	TypeRoomLeft       = "room:left"
	TypeRoomError      = "room:error"
	TypeHeartbeatPong  = "heartbeat:pong"
	TypeError          = "error"
)

type Connected struct {
	UserID    domain.UserID `json:"userId" msgpack:"userId"`
	Timestamp time.Time     `json:"timestamp" msgpack:"timestamp"`
}

func (Connected) Type() string { return TypeConnected }

type PresenceUpdate struct {
	UserID    domain.UserID `json:"userId" msgpack:"userId"`
	IsOnline  bool          `json:"isOnline" msgpack:"isOnline"`
	Timestamp time.Time     `json:"timestamp" msgpack:"timestamp"`
}

func (PresenceUpdate) Type() string { return TypePresenceUpdate }

type TypingUpdate struct {
	ConversationID domain.ConversationID `json:"conversationId" msgpack:"conversationId"`
	UserID         domain.UserID         `json:"userId" msgpack:"userId"`
	IsTyping       bool                  `json:"isTyping" msgpack:"isTyping"`
}

func (TypingUpdate) Type() string { return TypeTypingUpdate }

type MessageNew struct {
	ID             string                `json:"id" msgpack:"id"`
	ConversationID domain.ConversationID `json:"conversationId" msgpack:"conversationId"`
	SenderID       domain.UserID         `json:"senderId" msgpack:"senderId"`
	Content        string                `json:"content" msgpack:"content"`
	CreatedAt      time.Time             `json:"createdAt" msgpack:"createdAt"`
}

func (MessageNew) Type() string { return TypeMessageNew }

// NewMessage builds the live delivery event of a persisted message.
func NewMessage(m domain.Message) MessageNew {
	return MessageNew{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

type MessageSent struct {
	ConversationID domain.ConversationID `json:"conversationId" msgpack:"conversationId"`
	Success        bool                  `json:"success" msgpack:"success"`
}

func (MessageSent) Type() string { return TypeMessageSent }

type MessageError struct {
	ConversationID domain.ConversationID `json:"conversationId" msgpack:"conversationId"`
	Error          string                `json:"error" msgpack:"error"`
}

func (MessageError) Type() string { return TypeMessageError }

type RoomJoined struct {
	ConversationID domain.ConversationID `json:"conversationId" msgpack:"conversationId"`
}

func (RoomJoined) Type() string { return TypeRoomJoined }

type RoomLeft struct {
	ConversationID domain.ConversationID `json:"conversationId" msgpack:"conversationId"`
}

func (RoomLeft) Type() string { return TypeRoomLeft }

type RoomError struct {
	ConversationID domain.ConversationID `json:"conversationId" msgpack:"conversationId"`
	Error          string                `json:"error" msgpack:"error"`
}

func (RoomError) Type() string { return TypeRoomError }

type HeartbeatPong struct {
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

func (HeartbeatPong) Type() string { return TypeHeartbeatPong }

// Error is sent right before the server closes a connection it refuses.
type Error struct {
	Error string `json:"error" msgpack:"error"`
}

func (Error) Type() string { return TypeError }
