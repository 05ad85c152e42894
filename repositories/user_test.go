package repositories

import (
	"testing"
	"time"

	"nexchat/errors"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openDB(t))

	id, err := repo.CreateUser("alice", "hash")
	req.NoError(err)
	req.NotEmpty(id)

	user, err := repo.GetUserByUsername("alice")
	req.NoError(err)
	req.Equal(id, user.ID)
	req.Equal("hash", user.PasswordHash)

	_, err = repo.CreateUser("alice", "other")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	_, err = repo.GetUserByUsername("nobody")
	req.ErrorIs(err, ErrUserNotFound)
}

func TestUserRepository_List(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	repo := NewUserRepository(db)
	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := repo.CreateUser(name, "hash")
		req.NoError(err)
	}
	// Counters share the database and must not leak into the listing
	_, err := NewThrottleRepository(db).Hit("127.0.0.1", 3, time.Hour)
	req.NoError(err)

	users, err := repo.ListUsers()
	req.NoError(err)
	req.Len(users, 3)
	req.Equal("alice", users[0].Username)
	req.Equal("carol", users[2].Username)
}

func TestThrottleRepository_Hit(t *testing.T) {
	req := require.New(t)
	repo := NewThrottleRepository(openDB(t))
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	for range 3 {
		ok, err := repo.Hit("1.2.3.4", 3, 24*time.Hour)
		req.NoError(err)
		req.True(ok)
	}
	ok, err := repo.Hit("1.2.3.4", 3, 24*time.Hour)
	req.NoError(err)
	req.False(ok)

	// Another address has its own budget
	ok, err = repo.Hit("5.6.7.8", 3, 24*time.Hour)
	req.NoError(err)
	req.True(ok)

	// The next window starts fresh
	now = now.Add(24 * time.Hour)
	ok, err = repo.Hit("1.2.3.4", 3, 24*time.Hour)
	req.NoError(err)
	req.True(ok)
}
