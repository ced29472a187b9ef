package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"rendezvous/domain"
	"rendezvous/errors"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ConversationRepository stores one-to-one conversations.
//
// Keys:
//
//	conv:{id}                   -> the conversation
//	pair:{low_user}:{high_user} -> id, one conversation per pair of users
//	part:{user}:{id}            -> the other participant, for partner lookups
type ConversationRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

func NewConversationRepository(db *badger.DB) (*ConversationRepository, error) {
	seq, err := db.GetSequence([]byte("seq:conv"), 100)
	if err != nil {
		return nil, err
	}
	return &ConversationRepository{db: db, seq: seq, now: time.Now}, nil
}

// NewConversationReader opens the repository on a read-only database.
// CreateConversation fails on it.
func NewConversationReader(db *badger.DB) *ConversationRepository {
	return &ConversationRepository{db: db, now: time.Now}
}

// Close returns the unused part of the id lease.
func (r *ConversationRepository) Close() error {
	if r.seq == nil {
		return nil
	}
	return r.seq.Release()
}

type diskConversation struct {
	ID           int64    `msgpack:"id"`
	Participants [2]int64 `msgpack:"participants"`
	CreatedAt    int64    `msgpack:"created_at"`
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("conv:%d", id))
}

func pairKey(a, b domain.UserID) []byte {
	if a > b {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("pair:%d:%d", a, b))
}

func participantPrefix(userID domain.UserID) string {
	return fmt.Sprintf("part:%d:", userID)
}

func participantKey(userID domain.UserID, id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("%s%d", participantPrefix(userID), id))
}

// CreateConversation opens the conversation between a and b, or returns the
// existing one. created reports whether a new conversation was stored.
func (r *ConversationRepository) CreateConversation(ctx context.Context, a, b domain.UserID) (domain.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, false, err
	}
	if a <= 0 || b <= 0 || a == b {
		return domain.Conversation{}, false, fmt.Errorf("%w: got %d and %d", errors.ErrInvalidConversation, a, b)
	}
	if r.seq == nil {
		return domain.Conversation{}, false, fmt.Errorf("conversation repository is read-only")
	}

	var conversation domain.Conversation
	created := false
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(a, b))
		switch {
		case err == nil:
			var raw []byte
			if raw, err = item.ValueCopy(nil); err != nil {
				return err
			}
			id, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return err
			}
			conversation, err = getConversation(txn, domain.ConversationID(id))
			return err
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		next, err := r.seq.Next()
		if err != nil {
			return err
		}
		conversation = domain.Conversation{
			ID:           domain.ConversationID(next + 1),
			Participants: [2]domain.UserID{a, b},
			CreatedAt:    r.now().UTC(),
		}
		bytes, err := msgpack.Marshal(diskConversation{
			ID:           int64(conversation.ID),
			Participants: [2]int64{int64(a), int64(b)},
			CreatedAt:    conversation.CreatedAt.UnixNano(),
		})
		if err != nil {
			return err
		}
		id := []byte(strconv.FormatInt(int64(conversation.ID), 10))
		if err = txn.Set(conversationKey(conversation.ID), bytes); err != nil {
			return err
		}
		if err = txn.Set(pairKey(a, b), id); err != nil {
			return err
		}
		if err = txn.Set(participantKey(a, conversation.ID), []byte(strconv.FormatInt(int64(b), 10))); err != nil {
			return err
		}
		if err = txn.Set(participantKey(b, conversation.ID), []byte(strconv.FormatInt(int64(a), 10))); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conversation, created, nil
}

// Get loads one conversation.
func (r *ConversationRepository) Get(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	var conversation domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		return err
	})
	return conversation, err
}

// GetPartners lists every conversation of userID with the other participant.
func (r *ConversationRepository) GetPartners(ctx context.Context, userID domain.UserID) ([]domain.Partner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var partners []domain.Partner
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := participantPrefix(userID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			id, err := strconv.ParseInt(strings.TrimPrefix(string(item.Key()), prefix), 10, 64)
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			other, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return err
			}
			partners = append(partners, domain.Partner{
				ConversationID: domain.ConversationID(id),
				OtherUserID:    domain.UserID(other),
			})
		}
		return nil
	})
	return partners, err
}

// IsParticipant reports whether userID is one of the two users of the conversation.
// An unknown conversation has no participants.
func (r *ConversationRepository) IsParticipant(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(participantKey(userID, conversationID))
		switch {
		case err == nil:
			found = true
			return nil
		case stderrors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return found, err
}

// List returns every conversation ordered by key.
func (r *ConversationRepository) List(ctx context.Context) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("conv:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dc diskConversation
			if err := it.Item().Value(func(value []byte) error {
				return msgpack.Unmarshal(value, &dc)
			}); err != nil {
				return err
			}
			conversations = append(conversations, dc.toDomain())
		}
		return nil
	})
	return conversations, err
}

func getConversation(txn *badger.Txn, id domain.ConversationID) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("%w: %d", errors.ErrConversationNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var dc diskConversation
	err = item.Value(func(value []byte) error {
		return msgpack.Unmarshal(value, &dc)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return dc.toDomain(), nil
}

func (dc diskConversation) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:           domain.ConversationID(dc.ID),
		Participants: [2]domain.UserID{domain.UserID(dc.Participants[0]), domain.UserID(dc.Participants[1])},
		CreatedAt:    time.Unix(0, dc.CreatedAt).UTC(),
	}
}
