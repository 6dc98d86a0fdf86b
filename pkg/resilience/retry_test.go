package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "test", fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	sentinel := errors.New("still broken")
	err := Retry(context.Background(), "test", fastConfig(), func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
}

func TestPermanentStopsImmediately(t *testing.T) {
	attempts := 0
	sentinel := errors.New("contract violation")
	err := Retry(context.Background(), "test", fastConfig(), func() error {
		attempts++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("permanent errors must not be retried, got %d attempts", attempts)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) must be nil")
	}
}

func TestRetryHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, "test", cfg, func() error {
			attempts++
			return errors.New("transient")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not abort on cancellation")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", attempts)
	}
}

func TestOnBackoffInvoked(t *testing.T) {
	var backoffs int
	cfg := fastConfig()
	cfg.OnBackoff = func(attempt int, delay time.Duration) {
		backoffs++
	}
	_ = Retry(context.Background(), "test", cfg, func() error {
		return errors.New("transient")
	})
	// MaxAttempts failures produce MaxAttempts-1 backoff sleeps.
	if backoffs != 3 {
		t.Fatalf("expected 3 backoff callbacks, got %d", backoffs)
	}
}
