package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying with a short delay
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 5 * time.Millisecond

	err := Retry(context.Background(), cfg, fn)

	// Then: succeeds on the third attempt
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	cfg := ConstantRetryConfig(2, 5*time.Millisecond)

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts) // Initial + 2 retries
}

func TestRetry_ZeroRetriesRunsOnce(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), ConstantRetryConfig(0, time.Hour), func() error {
		attempts++
		return errors.New("nope")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	// Given: a long delay between attempts
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Retry(ctx, ConstantRetryConfig(5, time.Second), func() error {
		return errors.New("error")
	})

	// Then: returns promptly with the context error
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetry_CapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   10,
	}

	start := time.Now()
	_ = Retry(context.Background(), cfg, func() error { return errors.New("e") })

	// 5ms + 10ms + 10ms, far below the uncapped 5+50+500ms
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := RetryWithResult(context.Background(), ConstantRetryConfig(3, time.Millisecond), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("first")
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRetryWithResult_ReturnsZeroOnFailure(t *testing.T) {
	v, err := RetryWithResult(context.Background(), ConstantRetryConfig(1, time.Millisecond), func() (string, error) {
		return "partial", errors.New("failed")
	})

	assert.Error(t, err)
	assert.Equal(t, "", v)
}

func TestConstantRetryConfig_ClampsNegative(t *testing.T) {
	cfg := ConstantRetryConfig(-1, time.Second)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, 1.0, cfg.Multiplier)
}
