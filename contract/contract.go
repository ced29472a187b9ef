//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is the live transport behind a session.
// Send must not block the caller on a slow peer.
type Conn interface {
	ID() string
	Send(e event.Event) error
	Close() error
}

// ConversationStore resolves conversation membership. It is owned outside the realtime core.
type ConversationStore interface {
	GetPartners(ctx context.Context, userID domain.UserID) ([]domain.Partner, error)
	IsParticipant(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID) (bool, error)
}

// MessageStore durably persists messages and returns the confirmed record.
type MessageStore interface {
	Persist(ctx context.Context, conversationID domain.ConversationID, senderID domain.UserID, content string) (domain.Message, error)
}

// PresenceNotifier is told about registry online/offline transitions.
// at is stamped by the registry while it holds its lock, so it orders transitions of one user.
type PresenceNotifier interface {
	Online(userID domain.UserID, at time.Time)
	Offline(userID domain.UserID, at time.Time)
}

// IdentityResolver turns an authenticate command into a user identity.
type IdentityResolver interface {
	Resolve(cmd domain.Authenticate) (domain.UserID, error)
}

// ContentFilter rewrites message content before persistence.
type ContentFilter interface {
	Censor(content string) string
}
