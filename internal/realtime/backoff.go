package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultMultiplier  = 2.0
)

// ErrReconnectExhausted is returned once the attempt cap is reached.
var ErrReconnectExhausted = errors.New("realtime: reconnect attempts exhausted")

// ReconnectPolicy is a capped exponential backoff over an abstract connect
// capability. No reconnection is attempted once the cap is reached or the
// caller's context is cancelled.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultReconnectPolicy mirrors the widget's client-side reconnect settings.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Multiplier:  defaultMultiplier,
	}
}

func (p ReconnectPolicy) normalized() ReconnectPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = defaultMultiplier
	}
	return p
}

// Delay returns the wait before the given 0-indexed attempt. Attempt 0 has
// no delay; each subsequent attempt multiplies the base delay.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt <= 0 {
		return 0
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	return time.Duration(delay)
}

// Run invokes connect until it succeeds, the context is cancelled, or the
// attempt cap is reached. connect receives the 0-indexed attempt number.
func (p ReconnectPolicy) Run(ctx context.Context, connect func(ctx context.Context, attempt int) error) error {
	p = p.normalized()
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = connect(ctx, attempt)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, p.MaxAttempts, lastErr)
}
