package spatial

import (
	"math"
	"time"
)

// DefaultTimeConstant is how quickly position changes glide to their target
const DefaultTimeConstant = 10 * time.Millisecond

// Smoother approaches a target exponentially, one sample at a time.
// After one time constant the remaining distance has shrunk to 1/e.
type Smoother struct {
	value  float64
	target float64
	coeff  float64
}

// NewSmoother starts settled at initial. A non-positive time constant makes
// every change take effect on the next sample.
func NewSmoother(initial float64, timeConstant time.Duration, sampleRate float64) *Smoother {
	coeff := 1.0
	if timeConstant > 0 && sampleRate > 0 {
		coeff = 1 - math.Exp(-1/(timeConstant.Seconds()*sampleRate))
	}
	return &Smoother{
		value:  initial,
		target: initial,
		coeff:  coeff,
	}
}

// SetTarget changes the value being approached
func (s *Smoother) SetTarget(target float64) { s.target = target }

// Target returns the value being approached
func (s *Smoother) Target() float64 { return s.target }

// Value returns the current smoothed value
func (s *Smoother) Value() float64 { return s.value }

// Next advances one sample and returns the new value
func (s *Smoother) Next() float64 {
	s.value += (s.target - s.value) * s.coeff
	return s.value
}

// Reset jumps to v and makes it the target
func (s *Smoother) Reset(v float64) {
	s.value = v
	s.target = v
}
