// Package backoff computes reconnect delays.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// DefaultBaseDelay is the delay before the first reconnect attempt.
const DefaultBaseDelay = time.Second

// maxDelayMs is the largest delay, in milliseconds, a time.Duration holds.
const maxDelayMs = float64(math.MaxInt64 / int64(time.Millisecond))

// DefaultMaxAttempts is the number of failed reconnect attempts tolerated
// before the connection is declared failed.
const DefaultMaxAttempts = 5

// Policy defines exponential backoff parameters.
//
// The delay for a zero-based attempt is BaseDelay * Factor^attempt, plus
// optional jitter, clamped to MaxDelay when MaxDelay is positive.
type Policy struct {
	// BaseDelay is the delay for attempt 0.
	BaseDelay time.Duration
	// Factor is the exponential factor applied to each attempt.
	Factor float64
	// MaxDelay caps a single delay. Zero means no cap; the attempt limit
	// bounds the sequence instead.
	MaxDelay time.Duration
	// MaxAttempts is the number of failed attempts before giving up.
	// Zero or negative retries forever.
	MaxAttempts int
	// Jitter is the randomization factor (0.0 to 1.0) added on top of the
	// base delay.
	Jitter float64
}

// DefaultPolicy returns the reconnect policy used when none is configured.
// Base: 1s, Factor: 2, no cap, 5 attempts, no jitter.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		Factor:      2,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Normalize fills zero fields with defaults.
func (p Policy) Normalize() Policy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Factor <= 0 {
		p.Factor = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Delay returns the delay for a zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Jitter == 0 {
		return p.DelayWithRand(attempt, 0)
	}
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand returns the delay using a provided random value in [0.0, 1.0).
// This is useful for testing to provide deterministic results.
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt), 0)
	baseMs := float64(p.BaseDelay) / float64(time.Millisecond)

	base := baseMs * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*randomValue

	if p.MaxDelay > 0 {
		total = math.Min(total, float64(p.MaxDelay)/float64(time.Millisecond))
	}
	if total > maxDelayMs || math.IsNaN(total) {
		total = maxDelayMs
	}

	return time.Duration(math.Round(total)) * time.Millisecond
}

// Exhausted reports whether the given number of consecutive failures has
// used up the attempt budget.
func (p Policy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}
