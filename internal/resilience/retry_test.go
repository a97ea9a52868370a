package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), 3, time.Millisecond, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if v != 42 {
		t.Fatalf("v = %d, want 42", v)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsAtAttemptLimit(t *testing.T) {
	wantErr := errors.New("boom")
	calls := 0
	_, err := Retry(context.Background(), 3, time.Millisecond, func() (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), 5, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if v != "ok" {
		t.Fatalf("v = %q, want ok", v)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Retry(ctx, 5, 10*time.Millisecond, func() (int, error) {
		calls++
		return 0, errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// the first attempt still runs; cancellation is only observed
	// between attempts, during the backoff sleep.
	if calls == 0 {
		t.Fatalf("expected at least one attempt before cancellation took effect")
	}
}

func TestRetryZeroAttemptsIsNoop(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), 0, time.Millisecond, func() (int, error) {
		calls++
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if v != 0 {
		t.Fatalf("v = %d, want zero value", v)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}
