package runtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry_Succeeds_After_Transient_Failures(t *testing.T) {
	req := require.New(t)
	calls := 0
	value, err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("transient")
		}
		return "ok", nil
	})
	req.NoError(err)
	req.Equal("ok", value)
	req.Equal(3, calls)
}

func TestRetry_Stops_On_Permanent_Error(t *testing.T) {
	req := require.New(t)
	calls := 0
	cause := fmt.Errorf("rejected")
	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})
	req.ErrorIs(err, cause)
	req.Equal(1, calls)
}

func TestRetry_Honours_Context(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, fmt.Errorf("transient")
	})
	req.ErrorIs(err, context.Canceled)
	req.Equal(1, calls)
}
