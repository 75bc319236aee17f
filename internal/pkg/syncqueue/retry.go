package syncqueue

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines exponential backoff parameters for failed jobs.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter is the fraction of the computed delay randomized in either
	// direction, e.g. 0.2 spreads a 10s delay over 8-12s.
	Jitter float64
}

// DefaultRetryPolicy matches the queue's stock settings: 3 attempts,
// 30s initial delay doubling up to 10 minutes, 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  30 * time.Second,
		MaxDelay:      10 * time.Minute,
		BackoffFactor: 2,
		Jitter:        0.2,
	}
}

// NextDelay returns the delay for a given attempt (1-based) with clamping
// and jitter applied.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := p.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := float64(initial) * math.Pow(factor, float64(attempt-1))
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}
