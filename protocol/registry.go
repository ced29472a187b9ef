package protocol

import (
	"fmt"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
)

var commands = map[string]func(Envelope) (domain.Command, error){
	domain.CommandAuthenticate:  asCommand[domain.Authenticate],
	domain.CommandRoomJoin:      asCommand[domain.RoomJoin],
	domain.CommandRoomLeave:     asCommand[domain.RoomLeave],
	domain.CommandTypingStart:   asCommand[domain.TypingStart],
	domain.CommandTypingStop:    asCommand[domain.TypingStop],
	domain.CommandMessageSend:   asCommand[domain.MessageSend],
	domain.CommandHeartbeatPing: asCommand[domain.HeartbeatPing],
}

var events = map[string]func(Envelope) (event.Event, error){
	event.TypeConnected:      asEvent[event.Connected],
	event.TypePresenceUpdate: asEvent[event.PresenceUpdate],
	event.TypeTypingUpdate:   asEvent[event.TypingUpdate],
	event.TypeMessageNew:     asEvent[event.MessageNew],
	event.TypeMessageSent:    asEvent[event.MessageSent],
	event.TypeMessageError:   asEvent[event.MessageError],
	event.TypeRoomJoined:     asEvent[event.RoomJoined],
	event.TypeRoomLeft:       asEvent[event.RoomLeft],
	event.TypeRoomError:      asEvent[event.RoomError],
	event.TypeHeartbeatPong:  asEvent[event.HeartbeatPong],
	event.TypeError:          asEvent[event.Error],
}

func asCommand[T domain.Command](env Envelope) (domain.Command, error) {
	var v T
	if err := env.Bind(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return v, nil
}

func asEvent[T event.Event](env Envelope) (event.Event, error) {
	var v T
	if err := env.Bind(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return v, nil
}

// EncodeCommand is used by clients.
func EncodeCommand(c Codec, cmd domain.Command) ([]byte, error) {
	return c.Marshal(cmd.Type(), cmd)
}

// DecodeCommand is used by the server read loop.
func DecodeCommand(c Codec, data []byte) (domain.Command, error) {
	env, err := c.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	decode, ok := commands[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Type)
	}
	return decode(env)
}

// EncodeEvent is used by the server write loop.
func EncodeEvent(c Codec, e event.Event) ([]byte, error) {
	return c.Marshal(e.Type(), e)
}

// DecodeEvent is used by clients.
func DecodeEvent(c Codec, data []byte) (event.Event, error) {
	env, err := c.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	decode, ok := events[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Type)
	}
	return decode(env)
}
