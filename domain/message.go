package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a persisted chat message. It is only created by a message store
// and never mutated afterwards.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	CreatedAt      time.Time
}
