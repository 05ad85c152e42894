package ws

import (
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"nexchat/domain/event"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestConnection_Send_Closes_Slow_Consumer(t *testing.T) {
	req := require.New(t)

	// Given a connection whose buffer holds a single frame and nobody drains it
	conn := &Connection{
		identity: alice,
		log:      logs.GetLoggerFromLevel(slog.LevelDebug),
		send:     make(chan []byte, 1),
		done:     make(chan struct{}),
	}

	// When three events are sent
	first := conn.Send(event.OnlineUsers{alice})
	second := conn.Send(event.OnlineUsers{alice})
	third := conn.Send(event.OnlineUsers{alice})

	// Then the first is queued, the second overflows and the connection is closed
	req.NoError(first)
	req.ErrorIs(second, ErrSlowConsumer)
	req.ErrorIs(third, ErrConnectionClosed)
	req.Len(conn.send, 1)

	// And closing again is harmless
	req.NoError(conn.Close())
}

func TestRateLimiter_Refills_Over_Time(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Given a bucket of 2 tokens per second
	limiter := newRateLimiter(2, time.Second)
	limiter.now = func() time.Time { return now }
	limiter.lastCheck = now

	// Then the burst is spent and the third frame is refused
	req.True(limiter.allow())
	req.True(limiter.allow())
	req.False(limiter.allow())

	// When half a second passes, one token comes back
	now = now.Add(500 * time.Millisecond)
	req.True(limiter.allow())
	req.False(limiter.allow())

	// And a long pause never banks more than the capacity
	now = now.Add(time.Minute)
	req.True(limiter.allow())
	req.True(limiter.allow())
	req.False(limiter.allow())
}

func TestOriginPolicy_Check(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	restricted := NewOriginPolicy([]string{" HTTP://Chat.Example ", "not a url", ""}, log)
	open := NewOriginPolicy([]string{"*"}, log)

	tests := []struct {
		name     string
		policy   *OriginPolicy
		origin   string
		expected bool
	}{
		{name: "no origin header", policy: restricted, origin: "", expected: true},
		{name: "listed origin, case folded", policy: restricted, origin: "http://chat.example", expected: true},
		{name: "unlisted origin", policy: restricted, origin: "http://other.example", expected: false},
		{name: "malformed origin", policy: restricted, origin: "::", expected: false},
		{name: "wildcard", policy: open, origin: "http://anything.example", expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.expected, tt.policy.Check(r))
		})
	}
}
