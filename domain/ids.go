// Package domain contains the core concepts of the realtime layer.
// No runtime, network, or UI logic should be added here.
package domain

import "strconv"

type UserID int64

func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

type ConversationID int64

func (c ConversationID) String() string { return strconv.FormatInt(int64(c), 10) }

// TypingKey identifies one typing state machine.
type TypingKey struct {
	ConversationID ConversationID
	UserID         UserID
}
