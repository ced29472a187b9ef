package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"rendezvous/contract"
	"rendezvous/domain"
	"rendezvous/errors"
	"sync"

	"github.com/samber/lo"
)

type Set map[domain.UserID]struct{}

// Rooms tracks which users are live subscribers of a conversation's ephemeral events.
// It does not define membership: every join is checked against the conversation store.
// Subscriptions do not survive a disconnect.
type Rooms struct {
	mu      sync.RWMutex
	log     *slog.Logger
	store   contract.ConversationStore
	members map[domain.ConversationID]Set
	byUser  map[domain.UserID]map[domain.ConversationID]struct{}
}

func NewRooms(log *slog.Logger, store contract.ConversationStore) *Rooms {
	return &Rooms{
		log:     log,
		store:   store,
		members: make(map[domain.ConversationID]Set),
		byUser:  make(map[domain.UserID]map[domain.ConversationID]struct{}),
	}
}

// Join subscribes userID to conversationID after checking participation.
// Joining twice is a no-op.
func (r *Rooms) Join(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID) error {
	ok, err := r.store.IsParticipant(ctx, userID, conversationID)
	if err != nil {
		return fmt.Errorf("checking participation: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: user %d is not in conversation %d", errors.ErrForbidden, userID, conversationID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.members[conversationID]; !exists {
		r.members[conversationID] = make(Set)
	}
	r.members[conversationID][userID] = struct{}{}
	if _, exists := r.byUser[userID]; !exists {
		r.byUser[userID] = make(map[domain.ConversationID]struct{})
	}
	r.byUser[userID][conversationID] = struct{}{}
	return nil
}

// Leave unsubscribes userID. It reports whether a subscription existed.
func (r *Rooms) Leave(userID domain.UserID, conversationID domain.ConversationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leave(userID, conversationID)
}

// LeaveAll drops every subscription of userID and returns the rooms it left.
func (r *Rooms) LeaveAll(userID domain.UserID) []domain.ConversationID {
	left, _ := r.LeaveAllUnless(userID, nil)
	return left
}

// LeaveAllUnless is LeaveAll, skipped when superseded reports true. The check runs
// under the room lock so no join can slip in between the check and the cleanup.
func (r *Rooms) LeaveAllUnless(userID domain.UserID, superseded func() bool) ([]domain.ConversationID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if superseded != nil && superseded() {
		return nil, false
	}
	left := lo.Keys(r.byUser[userID])
	for _, conversationID := range left {
		r.leave(userID, conversationID)
	}
	return left, true
}

func (r *Rooms) leave(userID domain.UserID, conversationID domain.ConversationID) bool {
	members, ok := r.members[conversationID]
	if !ok {
		return false
	}
	if _, ok = members[userID]; !ok {
		return false
	}
	delete(members, userID)
	// If no one is left in the room, remove the room entry entirely
	if len(members) == 0 {
		delete(r.members, conversationID)
	}
	if joined, ok := r.byUser[userID]; ok {
		delete(joined, conversationID)
		if len(joined) == 0 {
			delete(r.byUser, userID)
		}
	}
	return true
}

// IsSubscribed reports whether userID currently receives the room's ephemeral events.
func (r *Rooms) IsSubscribed(userID domain.UserID, conversationID domain.ConversationID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[conversationID][userID]
	return ok
}

// Subscribers returns the live subscribers of a room, or nil if it has none.
func (r *Rooms) Subscribers(conversationID domain.ConversationID) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.members[conversationID]
	if !ok {
		return nil
	}
	return lo.Keys(members)
}
