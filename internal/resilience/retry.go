package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how an external call is retried.
type Policy struct {
	// MaxAttempts counts the first try. 1 disables retries. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps any single delay. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier grows the delay after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction randomizes each delay by ±fraction. Default: 0.25.
	JitterFraction float64

	// Retryable decides whether an error is worth another attempt.
	// Nil means IsTransient.
	Retryable func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is three attempts with exponential backoff from 500ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt >= p.MaxAttempts {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// backoff is the delay after the given (1-based) failed attempt.
func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	delay = math.Min(delay, float64(p.MaxBackoff))

	if p.JitterFraction > 0 {
		spread := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * spread
	}
	return time.Duration(math.Max(delay, 0))
}

// LogRetry returns an OnRetry hook that logs each retry at warn level.
func LogRetry(component, op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying external call",
			zap.String("component", component),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

// With returns a copy of p that logs retries under component/op.
func (p Policy) With(component, op string) Policy {
	p.OnRetry = LogRetry(component, op)
	return p
}
