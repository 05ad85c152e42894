//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"nexchat/domain"
	"nexchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// maxConflictRetries bounds how many times a read-modify-write is replayed
// when a concurrent transaction touched the same message.
const maxConflictRetries = 5

type IMessageRepository interface {
	Insert(message domain.Message) error
	FindByID(id uuid.UUID) (domain.Message, error)
	FindConversation(a, b string) ([]domain.Message, error)
	Mutate(id uuid.UUID, fn func(m *domain.Message) error) (domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// Keys:
//   - "msg:{uuid}" holds the record itself
//   - "conv:{low}:{high}:{uuid}" indexes it under its conversation. UUIDv7 ids
//     sort by creation time, so a prefix scan yields chronological order.
func messageKey(id uuid.UUID) []byte {
	return []byte("msg:" + id.String())
}

func conversationPrefix(a, b string) []byte {
	low, high := domain.PairKey(a, b)
	return []byte(fmt.Sprintf("conv:%s:%s:", low, high))
}

func conversationKey(m domain.Message) []byte {
	return append(conversationPrefix(m.Sender, m.Recipient), m.ID.String()...)
}

// Insert stores a new message and its conversation index atomically.
func (r MessageRepository) Insert(message domain.Message) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message.ID), bytes); err != nil {
			return err
		}
		return txn.Set(conversationKey(message), nil)
	})
}

func (r MessageRepository) FindByID(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = readMessage(txn, id)
		return err
	})
	return message, err
}

// FindConversation returns the history between a and b in ascending creation
// order, tombstones included. When a limit is configured only the most
// recent messages are kept.
func (r MessageRepository) FindConversation(a, b string) ([]domain.Message, error) {
	var ids []uuid.UUID
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := conversationPrefix(a, b)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts past the last key of the prefix
		for it.Seek(append(slices.Clone(prefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(ids) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
				break
			}
			id, err := uuid.ParseBytes(it.Item().Key()[len(prefix):])
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		for _, id := range ids {
			message, err := readMessage(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(messages, func(x, y domain.Message) int {
		return domain.CreationTime(x).Compare(domain.CreationTime(y))
	})
	return lo.Ternary(messages == nil, []domain.Message{}, messages), nil
}

// Mutate applies fn to the stored message inside a single transaction and
// persists the result. fn sees the latest committed state, so checks done in
// it cannot race with a concurrent mutation of the same message.
// If fn returns an error nothing is written.
func (r MessageRepository) Mutate(id uuid.UUID, fn func(m *domain.Message) error) (domain.Message, error) {
	var updated domain.Message
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = r.db.Update(func(txn *badger.Txn) error {
			message, err := readMessage(txn, id)
			if err != nil {
				return err
			}
			if err = fn(&message); err != nil {
				return err
			}
			bytes, err := json.Marshal(message)
			if err != nil {
				return err
			}
			updated = message
			return txn.Set(messageKey(id), bytes)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		r.log.Debug("Transaction conflict, replaying mutation", "message_id", id, "attempt", attempt+1)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}

func readMessage(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	item, err := txn.Get(messageKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return message, errors.ErrMessageNotFound
	}
	if err != nil {
		return message, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &message)
	})
	return message, err
}
