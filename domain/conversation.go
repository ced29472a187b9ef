package domain

import "time"

// Conversation is a two-party room. Membership is owned by the conversation store.
type Conversation struct {
	ID           ConversationID
	Participants [2]UserID
	CreatedAt    time.Time
}

// Has reports whether userID is one of the two participants.
func (c Conversation) Has(userID UserID) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID UserID) (UserID, bool) {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	}
	return 0, false
}

// Partner is one conversation seen from a given user.
type Partner struct {
	ConversationID ConversationID
	OtherUserID    UserID
}
