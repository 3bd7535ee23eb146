package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt. Implementations must be
// safe for concurrent use; attempt is zero-based.
type Strategy interface {
	Calculate(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialJitter grows the delay geometrically and adds bounded uniform
// jitter: min(initial*multiplier^attempt, max), inflated by up to jitter*100%.
type ExponentialJitter struct{}

// Calculate implements Strategy.
func (ExponentialJitter) Calculate(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		// multiplier^31 overflows time.Duration for any sane initial value
		attempt = 30
	}

	d := time.Duration(float64(initial) * Pow(multiplier, attempt))
	if d < 0 || d > max {
		d = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(d) * jitter * rand.Float64())
		if d+extra > max {
			d = max
		} else {
			d += extra
		}
	}
	return d
}

// DecorrelatedJitter implements AWS-style decorrelated jitter:
// random_between(base, min(cap, base*3^attempt)). Smoother tail latencies
// than exponential jitter when many callers retry in lockstep.
type DecorrelatedJitter struct{}

// Calculate implements Strategy. Multiplier and jitter are ignored; the
// 3x growth factor is part of the decorrelated formula.
func (DecorrelatedJitter) Calculate(attempt int, initial, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initial)
	upper := base * Pow(3.0, attempt)
	if upper > float64(max) || upper < 0 {
		upper = float64(max)
	}
	if upper < base {
		upper = base
	}

	d := time.Duration(base + rand.Float64()*(upper-base))
	if d < 0 || d > max {
		d = max
	}
	return d
}

// clampJitter bounds jitter to [0, 1].
func clampJitter(j float64) float64 {
	if j < 0 {
		return 0
	}
	if j > 1 {
		return 1
	}
	return j
}

// Pow is integer exponentiation over float64. math.Pow's special-case
// handling is unnecessary for the small exponents used here.
func Pow(base float64, exp int) float64 {
	r := 1.0
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}
