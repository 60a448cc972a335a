package resilience

import "time"

// PolicyFrom builds a Policy from flat config values. Zero or negative
// values keep the defaults.
func PolicyFrom(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if multiplier > 0 {
		p.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		p.JitterFraction = jitterFraction
	}
	return p
}
