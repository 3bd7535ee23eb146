package backoff

import "time"

// Calculator binds a Strategy to its call sites so the algorithm can be
// swapped without touching them.
type Calculator struct {
	strategy Strategy
}

// NewCalculator returns a calculator using the given strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Default returns a calculator using ExponentialJitter.
func Default() *Calculator {
	return NewCalculator(ExponentialJitter{})
}

// Calculate computes the delay before the given zero-based attempt.
func (c *Calculator) Calculate(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initial, max, multiplier, jitter)
}
