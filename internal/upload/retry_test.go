package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func testPolicy() Policy {
	return Policy{MaxRetries: 2, InitialInterval: time.Millisecond, Randomize: false}
}

func TestPolicyRetriesThenSucceeds(t *testing.T) {
	calls := 0
	notified := 0
	err := testPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, func(error) { notified++ })

	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if notified != 2 {
		t.Errorf("notify fired %d times, want 2", notified)
	}
}

func TestPolicyExhaustsRetries(t *testing.T) {
	calls := 0
	boom := errors.New("still down")
	err := testPolicy().Do(context.Background(), func() error {
		calls++
		return boom
	}, nil)

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	// One initial attempt plus MaxRetries.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicyStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := testPolicy().Do(context.Background(), func() error {
		calls++
		return backoff.Permanent(errors.New("rejected"))
	}, nil)

	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after a permanent error)", calls)
	}
}

func TestPolicyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{MaxRetries: 50, InitialInterval: 10 * time.Millisecond}.Do(ctx, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("down")
	}, nil)

	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if calls > 2 {
		t.Errorf("calls = %d, want at most 2 after cancel", calls)
	}
}
