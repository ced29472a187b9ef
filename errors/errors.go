package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrUnauthenticated      = fmt.Errorf("unauthenticated")
	ErrForbidden            = fmt.Errorf("forbidden")
	ErrInvalidInput         = fmt.Errorf("invalid input")
	ErrPersistenceFailure   = fmt.Errorf("persistence failure")
	ErrTransportLoss        = fmt.Errorf("transport loss")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrInvalidConversation  = fmt.Errorf("a conversation needs two distinct participants")
	ErrSessionClosed        = fmt.Errorf("session closed")
	ErrSendBufferFull       = fmt.Errorf("send buffer full")
	ErrUnknownEvent         = fmt.Errorf("unknown event type")
)

// Wire codes sent back to clients in message:error, room:error and error events.
const (
	CodeUnauthenticated    = "unauthenticated"
	CodeForbidden          = "forbidden"
	CodeInvalidInput       = "invalid_input"
	CodePersistenceFailure = "persistence_failure"
	CodeInternal           = "internal"
)

// Code maps an error to the stable string a client can switch on.
// Anything that is not one of the known sentinels becomes "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrPersistenceFailure):
		return CodePersistenceFailure
	default:
		return CodeInternal
	}
}
