package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"rendezvous/domain"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const DefaultHistoryLimit = 50

// MessageRepository is the durable message log.
// The key is formatted as "msg:{conversation_id}:{timestamp_padded}:{uuid}" so that:
//  1. A prefix scan returns one conversation in chronological order (19-digit zero padding).
//  2. Two messages stored in the same nanosecond do not overwrite each other.
type MessageRepository struct {
	db    *badger.DB
	log   *slog.Logger
	limit int
	now   func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limit int) *MessageRepository {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MessageRepository{db: db, log: log, limit: limit, now: time.Now}
}

type diskMessage struct {
	ID             string `msgpack:"id"`
	ConversationID int64  `msgpack:"conversation_id"`
	SenderID       int64  `msgpack:"sender_id"`
	Content        string `msgpack:"content"`
	At             int64  `msgpack:"at"`
}

func messagePrefix(conversationID domain.ConversationID) string {
	return fmt.Sprintf("msg:%d:", conversationID)
}

// Persist assigns the message its id and timestamp and writes it.
// The returned message is the stored record.
func (r *MessageRepository) Persist(ctx context.Context, conversationID domain.ConversationID,
	senderID domain.UserID, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      r.now().UTC(),
	}
	key := fmt.Sprintf("%s%019d:%s", messagePrefix(conversationID), message.CreatedAt.UnixNano(), message.ID)
	bytes, err := msgpack.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("storing message %s: %w", message.ID, err)
	}
	return message, nil
}

// GetMessages returns a page of a conversation's history, newest first.
// A nil cursor starts from the latest message. The returned cursor is nil
// once the oldest message has been returned.
func (r *MessageRepository) GetMessages(conversationID domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	var values [][]byte
	var lastKey string
	more := false
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(conversationID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the newest possible key, the reverse iterator then walks back in time
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(values) == r.limit {
				more = true
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(values))
	for _, b := range values {
		var dm diskMessage
		if err = msgpack.Unmarshal(b, &dm); err != nil {
			return nil, nil, err
		}
		message, err := toMessage(dm)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	if !more {
		r.log.Debug("History exhausted", "conversation_id", conversationID, "count", len(messages))
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:             m.ID.String(),
		ConversationID: int64(m.ConversationID),
		SenderID:       int64(m.SenderID),
		Content:        m.Content,
		At:             m.CreatedAt.UnixNano(),
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             parsedID,
		ConversationID: domain.ConversationID(dm.ConversationID),
		SenderID:       domain.UserID(dm.SenderID),
		Content:        dm.Content,
		CreatedAt:      time.Unix(0, dm.At).UTC(),
	}, nil
}
