package runtime

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"nexchat/domain"
	"nexchat/domain/event"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// recordingConn is a Connection that keeps every event it was sent.
type recordingConn struct {
	id       string
	identity domain.Identity
	onSend   func()

	mu     sync.Mutex
	events []event.ServerEvent
	closed bool
}

func newConn(userID, username string) *recordingConn {
	return &recordingConn{id: uuid.NewString(), identity: domain.Identity{UserID: userID, Username: username}}
}

func (c *recordingConn) ID() string                { return c.id }
func (c *recordingConn) Identity() domain.Identity { return c.identity }

func (c *recordingConn) Send(evt event.ServerEvent) error {
	if c.onSend != nil {
		c.onSend()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) received() []event.ServerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.ServerEvent(nil), c.events...)
}

func (c *recordingConn) receivedOf(t event.Type) []event.ServerEvent {
	var out []event.ServerEvent
	for _, evt := range c.received() {
		if evt.EventType() == t {
			out = append(out, evt)
		}
	}
	return out
}

func openDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}
