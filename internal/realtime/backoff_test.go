package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReconnectPolicyDelayDoubles(t *testing.T) {
	policy := ReconnectPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := policy.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestReconnectPolicyRunStopsAtCap(t *testing.T) {
	policy := ReconnectPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

	attempts := 0
	err := policy.Run(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt != attempts {
			t.Fatalf("expected attempt %d, got %d", attempts, attempt)
		}
		attempts++
		return errors.New("refused")
	})
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestReconnectPolicyRunSucceedsMidway(t *testing.T) {
	policy := ReconnectPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2}

	attempts := 0
	err := policy.Run(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		if attempt < 2 {
			return errors.New("refused")
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

func TestReconnectPolicyRunHonorsContextCancellation(t *testing.T) {
	policy := ReconnectPolicy{MaxAttempts: 10, BaseDelay: time.Hour, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- policy.Run(ctx, func(ctx context.Context, attempt int) error {
			return errors.New("refused")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return after cancellation")
	}
}

func TestReconnectPolicyDefaults(t *testing.T) {
	var policy ReconnectPolicy
	if got := policy.Delay(1); got != defaultBaseDelay {
		t.Fatalf("expected default base delay, got %v", got)
	}
	def := DefaultReconnectPolicy()
	if def.MaxAttempts != defaultMaxAttempts || def.Multiplier != defaultMultiplier {
		t.Fatalf("unexpected defaults %#v", def)
	}
}
