package runtime

import (
	"testing"
	"time"

	"nexchat/domain"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type mutationFixture struct {
	clock      *fakeClock
	registry   *Registry
	repository repositories.MessageRepository
	authorizer *MutationAuthorizer
	message    domain.Message
	t0         time.Time
}

// newMutationFixture stores a message from alice to bob created at t0.
func newMutationFixture(t *testing.T) mutationFixture {
	t.Helper()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	registry := NewRegistry(false)
	repository := repositories.NewMessageRepository(openDB(t), testLogger(), nil)
	file := "https://cdn.example/a.png"
	message, err := domain.NewMessage("a", "b", "hello", &file, t0)
	require.NoError(t, err)
	require.NoError(t, repository.Insert(message))
	return mutationFixture{
		clock:      clock,
		registry:   registry,
		repository: repository,
		authorizer: NewMutationAuthorizer(testLogger(), registry, repository, nil, clock.Now, domain.MutabilityWindow, nil),
		message:    message,
		t0:         t0,
	}
}

// Scenario: an edit just inside the window succeeds, one just after fails.
func TestMutationAuthorizer_Update_Window(t *testing.T) {
	req := require.New(t)
	f := newMutationFixture(t)

	f.clock.Set(f.t0.Add(4*time.Minute + 59*time.Second))
	updated, err := f.authorizer.Update(f.message.ID.String(), "hello again", "a")
	req.NoError(err)
	req.True(updated.IsEdited)
	req.Equal("hello again", updated.Text)

	f.clock.Set(f.t0.Add(5*time.Minute + time.Second))
	_, err = f.authorizer.Update(f.message.ID.String(), "too late", "a")
	req.ErrorIs(err, errors.ErrMutationWindowExpired)

	stored, err := f.repository.FindByID(f.message.ID)
	req.NoError(err)
	req.Equal("hello again", stored.Text)
	req.True(stored.IsEdited)
}

func TestMutationAuthorizer_Window_Boundary_Is_Inclusive(t *testing.T) {
	req := require.New(t)
	f := newMutationFixture(t)

	f.clock.Set(f.t0.Add(domain.MutabilityWindow))
	_, err := f.authorizer.Delete(f.message.ID.String(), "a")
	req.NoError(err)
}

func TestMutationAuthorizer_Rejections_Leave_State_Untouched(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		elapsed   time.Duration
		messageID func(m domain.Message) string
		wantErr   error
	}{
		{"Non owner update", "b", time.Minute, func(m domain.Message) string { return m.ID.String() }, errors.ErrUnauthorized},
		{"Uninvolved user", "c", time.Minute, func(m domain.Message) string { return m.ID.String() }, errors.ErrUnauthorized},
		{"Owner after window", "a", 6 * time.Minute, func(m domain.Message) string { return m.ID.String() }, errors.ErrMutationWindowExpired},
		{"Non owner after window", "b", 6 * time.Minute, func(m domain.Message) string { return m.ID.String() }, errors.ErrUnauthorized},
		{"Unknown id", "a", time.Minute, func(domain.Message) string { return uuid.NewString() }, errors.ErrMessageNotFound},
		{"Malformed id", "a", time.Minute, func(domain.Message) string { return "temp-123" }, errors.ErrMessageNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newMutationFixture(t)
			aliceConn, bobConn := newConn("a", "alice"), newConn("b", "bob")
			f.registry.Register(alice, aliceConn)
			f.registry.Register(bob, bobConn)
			f.clock.Set(f.t0.Add(tt.elapsed))

			_, err := f.authorizer.Update(tt.messageID(f.message), "changed", tt.requester)
			req.ErrorIs(err, tt.wantErr)
			_, err = f.authorizer.Delete(tt.messageID(f.message), tt.requester)
			req.ErrorIs(err, tt.wantErr)

			stored, err := f.repository.FindByID(f.message.ID)
			req.NoError(err)
			req.Equal(f.message, stored)
			req.Empty(aliceConn.received())
			req.Empty(bobConn.received())
		})
	}
}

func TestMutationAuthorizer_Delete_Tombstones_And_Blocks_Edits(t *testing.T) {
	req := require.New(t)
	f := newMutationFixture(t)
	f.clock.Set(f.t0.Add(time.Minute))

	deleted, err := f.authorizer.Delete(f.message.ID.String(), "a")
	req.NoError(err)
	req.True(deleted.IsDeleted)
	req.Nil(deleted.File)
	req.Empty(deleted.Text)

	// The record is still in history
	history, err := f.repository.FindConversation("a", "b")
	req.NoError(err)
	req.Len(history, 1)
	req.True(history[0].IsDeleted)

	_, err = f.authorizer.Update(f.message.ID.String(), "resurrect", "a")
	req.ErrorIs(err, errors.ErrMessageDeleted)
	_, err = f.authorizer.Delete(f.message.ID.String(), "a")
	req.ErrorIs(err, errors.ErrMessageDeleted)
}

func TestMutationAuthorizer_Broadcasts_To_Both_Parties(t *testing.T) {
	req := require.New(t)
	f := newMutationFixture(t)
	aliceTab1, aliceTab2 := newConn("a", "alice"), newConn("a", "alice")
	bobConn, carolConn := newConn("b", "bob"), newConn("c", "carol")
	f.registry.Register(alice, aliceTab1)
	f.registry.Register(alice, aliceTab2)
	f.registry.Register(bob, bobConn)
	f.registry.Register(carol, carolConn)
	f.clock.Set(f.t0.Add(time.Minute))

	updated, err := f.authorizer.Update(f.message.ID.String(), "edited", "a")
	req.NoError(err)
	deleted, err := f.authorizer.Delete(f.message.ID.String(), "a")
	req.NoError(err)

	expected := []event.ServerEvent{
		event.MessageUpdated{ID: f.message.ID, Text: "edited", IsEdited: true, UpdatedAt: updated.UpdatedAt},
		event.MessageDeleted{ID: f.message.ID, IsDeleted: true},
	}
	req.Equal(expected, aliceTab1.received())
	req.Equal(expected, aliceTab2.received())
	req.Equal(expected, bobConn.received())
	req.Empty(carolConn.received())
	req.Equal(f.t0.Add(time.Minute), deleted.UpdatedAt)
}

func TestMutationAuthorizer_Update_Requires_Text(t *testing.T) {
	f := newMutationFixture(t)
	_, err := f.authorizer.Update(f.message.ID.String(), "", "a")
	require.ErrorIs(t, err, errors.ErrInvalidIntent)
}
