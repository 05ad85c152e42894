package runtime

import (
	"context"
	"math/rand/v2"
	"time"

	"nexchat/errors"
)

// RetryConfig bounds the retries around an infrastructure call.
type RetryConfig struct {
	// MaxAttempts includes the first call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2,
		Jitter:       true,
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Retry runs op until it succeeds, returns a permanent error, runs out of
// attempts or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, config RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.Factor <= 0 {
		config.Factor = 2
	}
	delay := config.InitialDelay

	var err error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		var value T
		if value, err = op(ctx); err == nil {
			return value, nil
		}
		if isPermanent(err) || attempt == config.MaxAttempts {
			break
		}

		sleep := delay
		if config.Jitter && delay > 0 {
			// delay * [0.5, 1.5)
			sleep = time.Duration(float64(delay) * (0.5 + rand.Float64()))
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * config.Factor)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return zero, err
}
