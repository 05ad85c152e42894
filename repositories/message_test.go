package repositories

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"nexchat/domain"
	"nexchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessage(t *testing.T, sender, recipient, text string, at time.Time) domain.Message {
	m, err := domain.NewMessage(sender, recipient, text, nil, at)
	require.NoError(t, err)
	return m
}

func Test_Record_Conversation_Both_Directions(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	// Given messages in both directions and one in another conversation
	messages := []domain.Message{
		newMessage(t, "alice", "bob", "hi", at),
		newMessage(t, "bob", "alice", "hello", at.Add(time.Second)),
		newMessage(t, "alice", "bob", "how are you", at.Add(2*time.Second)),
	}
	for _, m := range messages {
		req.NoError(repository.Insert(m))
	}
	req.NoError(repository.Insert(newMessage(t, "alice", "clara", "other", at)))

	// When fetching from either side
	fromAlice, err := repository.FindConversation("alice", "bob")
	req.NoError(err)
	fromBob, err := repository.FindConversation("bob", "alice")
	req.NoError(err)

	// Then both see the same ordered history
	req.Equal(messages, fromAlice)
	req.Equal(fromAlice, fromBob)
}

func Test_Record_Conversation_Limit_Keeps_Most_Recent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), lo.ToPtr(2))
	at := time.Now().UTC()

	var messages []domain.Message
	for i := range 3 {
		m := newMessage(t, "alice", "bob", "msg", at.Add(time.Duration(i)*time.Minute))
		req.NoError(repository.Insert(m))
		messages = append(messages, m)
	}

	fetched, err := repository.FindConversation("alice", "bob")
	req.NoError(err)
	req.Len(fetched, 2)
	req.Equal(messages[1:], fetched)
}

func Test_Empty_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)

	fetched, err := repository.FindConversation("alice", "bob")
	req.NoError(err)
	req.NotNil(fetched)
	req.Empty(fetched)
}

func Test_FindByID_Unknown(t *testing.T) {
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	_, err := repository.FindByID(uuid.New())
	require.ErrorIs(t, err, errors.ErrMessageNotFound)
}

func Test_Mutate_Persists_And_Aborts(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	m := newMessage(t, "alice", "bob", "hi", time.Now())
	req.NoError(repository.Insert(m))

	// When the mutation succeeds
	updated, err := repository.Mutate(m.ID, func(msg *domain.Message) error {
		msg.Edit("edited", time.Now())
		return nil
	})
	req.NoError(err)
	req.Equal("edited", updated.Text)
	stored, err := repository.FindByID(m.ID)
	req.NoError(err)
	req.Equal(updated, stored)

	// When the mutation refuses
	_, err = repository.Mutate(m.ID, func(msg *domain.Message) error {
		msg.Tombstone(time.Now())
		return errors.ErrUnauthorized
	})
	req.ErrorIs(err, errors.ErrUnauthorized)
	stored, err = repository.FindByID(m.ID)
	req.NoError(err)
	req.False(stored.IsDeleted)
	req.Equal("edited", stored.Text)

	_, err = repository.Mutate(uuid.New(), func(*domain.Message) error { return nil })
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func Test_Mutate_Concurrent_Only_One_Delete_Wins(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	m := newMessage(t, "alice", "bob", "hi", time.Now())
	req.NoError(repository.Insert(m))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repository.Mutate(m.ID, func(msg *domain.Message) error {
				if msg.IsDeleted {
					return errors.ErrMessageDeleted
				}
				msg.Tombstone(time.Now())
				return nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	req.Equal(1, succeeded)
}
