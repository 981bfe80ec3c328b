package retrying

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

func fastPolicy(attempts uint64) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	wantErr := errors.New("constraint violated")

	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("op ran %d times, want 1 (no retry on permanent errors)", calls)
	}
}

func TestDoRetriesTransientUntilBudget(t *testing.T) {
	calls := 0

	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return errorbank.Unavailable("connection refused")
	})

	if !errorbank.IsKind(err, errorbank.KindUnavailable) {
		t.Fatalf("error = %v, want unavailable", err)
	}
	if calls != 3 {
		t.Errorf("op ran %d times, want 3", calls)
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	calls := 0

	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errorbank.Unavailable("connection reset")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("op ran %d times, want 2", calls)
	}
}

func TestTransient(t *testing.T) {
	if Transient(nil) {
		t.Error("nil is not transient")
	}
	if Transient(errors.New("boom")) {
		t.Error("plain errors are not transient")
	}
	if !Transient(context.DeadlineExceeded) {
		t.Error("deadline exceeded is transient")
	}
	if !Transient(errorbank.Unavailable("down")) {
		t.Error("unavailable is transient")
	}
}
