package domain

// Command is an inbound client event.
type Command interface {
	Type() string
}

const (
	CommandAuthenticate  = "authenticate"
	CommandRoomJoin      = "room:join"
	CommandRoomLeave     = "room:leave"
	CommandTypingStart   = "typing:start"
	CommandTypingStop    = "typing:stop"
	CommandMessageSend   = "message:send"
	CommandHeartbeatPing = "heartbeat:ping"
)

type Authenticate struct {
	UserID UserID `json:"userId" msgpack:"userId"`
	Token  string `json:"token,omitempty" msgpack:"token,omitempty"`
}

func (Authenticate) Type() string { return CommandAuthenticate }

type RoomJoin struct {
	ConversationID ConversationID `json:"conversationId" msgpack:"conversationId" validate:"required"`
}

func (RoomJoin) Type() string { return CommandRoomJoin }

type RoomLeave struct {
	ConversationID ConversationID `json:"conversationId" msgpack:"conversationId" validate:"required"`
}

func (RoomLeave) Type() string { return CommandRoomLeave }

type TypingStart struct {
	ConversationID ConversationID `json:"conversationId" msgpack:"conversationId" validate:"required"`
}

func (TypingStart) Type() string { return CommandTypingStart }

type TypingStop struct {
	ConversationID ConversationID `json:"conversationId" msgpack:"conversationId" validate:"required"`
}

func (TypingStop) Type() string { return CommandTypingStop }

// MessageSend content is checked by the fanout pipeline, not by tags, so that an
// invalid content is reported as message:error to the sender.
type MessageSend struct {
	ConversationID ConversationID `json:"conversationId" msgpack:"conversationId" validate:"required"`
	Content        string         `json:"content" msgpack:"content"`
}

func (MessageSend) Type() string { return CommandMessageSend }

type HeartbeatPing struct{}

func (HeartbeatPing) Type() string { return CommandHeartbeatPing }
