package retry

import (
	"context"
	stderr "errors"
	"testing"
	"time"

	"github.com/tiercache/tiercache/pkg/errors"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.Jitter = false
	return cfg
}

// TestRetryer_SucceedsAfterRetries tests eventual success on a retryable
// error
func TestRetryer_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	r := New(fastConfig())

	attempts := 0
	err := r.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.ErrCodeTierUnavailable, "flaky")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

// TestRetryer_NonRetryableFailsFast verifies non-retryable errors are not
// repeated
func TestRetryer_NonRetryableFailsFast(t *testing.T) {
	t.Parallel()

	r := New(fastConfig())

	attempts := 0
	err := r.Do(func() error {
		attempts++
		return errors.New(errors.ErrCodeInvalidConfig, "permanent")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

// TestRetryer_PlainErrorNotRetried verifies unstructured errors fail fast
func TestRetryer_PlainErrorNotRetried(t *testing.T) {
	t.Parallel()

	r := New(fastConfig())

	attempts := 0
	err := r.Do(func() error {
		attempts++
		return stderr.New("plain failure")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

// TestRetryer_ExhaustsAttempts tests the max-attempts bound
func TestRetryer_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	r := New(fastConfig())

	attempts := 0
	err := r.Do(func() error {
		attempts++
		return errors.New(errors.ErrCodeNetworkError, "always failing")
	})

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

// TestRetryer_ContextCancellation verifies the wait between attempts is
// interruptible
func TestRetryer_ContextCancellation(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	r := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- r.DoWithContext(ctx, func(context.Context) error {
			attempts++
			return errors.New(errors.ErrCodeTierUnavailable, "slow backend")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
		if !stderr.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not honor cancellation")
	}

	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancel, got %d", attempts)
	}
}

// TestRetryer_OnRetryCallback tests callback invocation per retry
func TestRetryer_OnRetryCallback(t *testing.T) {
	t.Parallel()

	var callbacks int
	r := New(fastConfig()).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		callbacks++
	})

	_ = r.Do(func() error {
		return errors.New(errors.ErrCodeTierUnavailable, "failing")
	})

	// 3 attempts mean 2 retries.
	if callbacks != 2 {
		t.Errorf("expected 2 callbacks, got %d", callbacks)
	}
}

// TestRetryer_WithMaxAttempts tests the derived-retryer helper
func TestRetryer_WithMaxAttempts(t *testing.T) {
	t.Parallel()

	r := New(fastConfig()).WithMaxAttempts(2)

	attempts := 0
	_ = r.Do(func() error {
		attempts++
		return errors.New(errors.ErrCodeTierUnavailable, "failing")
	})

	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

// TestCalculateDelay tests exponential growth capped at MaxDelay
func TestCalculateDelay(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
	r := New(cfg)

	wants := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond, // capped
	}
	for i, want := range wants {
		if got := r.calculateDelay(i + 1); got != want {
			t.Errorf("attempt %d: expected delay %v, got %v", i+1, want, got)
		}
	}
}
