// Package protocol encodes commands and events as {type, payload} envelopes.
// JSON is the default; MessagePack carries the same envelope for clients that negotiate it.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// SubprotocolMsgpack is the websocket subprotocol selecting the MessagePack codec.
const SubprotocolMsgpack = "rendezvous.msgpack"

// Codec marshals one envelope per transport frame.
type Codec interface {
	Name() string
	// Binary reports whether frames must be sent as binary frames.
	Binary() bool
	Marshal(typ string, payload any) ([]byte, error)
	Unmarshal(data []byte) (Envelope, error)
}

// Envelope is a decoded frame whose payload has not been bound yet.
type Envelope struct {
	Type    string
	payload []byte
	bind    func([]byte, any) error
}

// Bind decodes the payload into v. An absent payload leaves v untouched.
func (e Envelope) Bind(v any) error {
	if len(e.payload) == 0 {
		return nil
	}
	return e.bind(e.payload, v)
}

// ForSubprotocol picks the codec matching a negotiated subprotocol.
func ForSubprotocol(name string) Codec {
	if name == SubprotocolMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

type JSONCodec struct{}

type jsonEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Marshal(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return json.Marshal(jsonEnvelope{Type: typ, Payload: raw})
}

func (JSONCodec) Unmarshal(data []byte) (Envelope, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	payload := []byte(env.Payload)
	if string(payload) == "null" {
		payload = nil
	}
	return Envelope{Type: env.Type, payload: payload, bind: json.Unmarshal}, nil
}

type MsgpackCodec struct{}

type msgpackEnvelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Marshal(typ string, payload any) ([]byte, error) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return msgpack.Marshal(msgpackEnvelope{Type: typ, Payload: raw})
}

func (MsgpackCodec) Unmarshal(data []byte) (Envelope, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: env.Type, payload: env.Payload, bind: msgpack.Unmarshal}, nil
}
