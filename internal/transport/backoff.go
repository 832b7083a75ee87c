package transport

import (
	"math"
	"time"
)

// Backoff controls the delay between reconnection attempts. Attempts are
// unlimited; only the delay is bounded.
type Backoff struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultBackoff starts at 1s, doubles, and caps at 5s.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
}

// NextDelay returns the delay before the given attempt (1-indexed):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (b Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.MaxDelay > 0 && (delay > float64(b.MaxDelay) || math.IsInf(delay, 0)) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}
