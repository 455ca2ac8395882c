package wavelet

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-hush/internal/audio"
)

// DefaultThreshold is the shrinkage applied until a control update arrives
const DefaultThreshold = 0.1

// ErrInvalidThreshold is returned for negative or non-finite thresholds
var ErrInvalidThreshold = errors.New("wavelet: threshold must be a finite value >= 0")

// ValidateThreshold checks a threshold coming from the control surface
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, t)
	}
	return nil
}

// Stage adapts Denoiser to the pipeline stage contract.
//
// Threshold and enabled flag are only touched by the processing goroutine,
// between blocks.
type Stage struct {
	denoiser  *Denoiser
	threshold float64
	enabled   bool
}

// NewStage creates an enabled wavelet stage for the given block size
func NewStage(blockSize int, threshold float64) (*Stage, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	return &Stage{
		denoiser:  NewDenoiser(blockSize),
		threshold: threshold,
		enabled:   true,
	}, nil
}

// Name implements audio.Stage
func (s *Stage) Name() string { return "wavelet" }

// SetThreshold replaces the threshold used for the next block
func (s *Stage) SetThreshold(t float64) error {
	if err := ValidateThreshold(t); err != nil {
		return err
	}
	s.threshold = t
	return nil
}

// Threshold returns the current threshold
func (s *Stage) Threshold() float64 { return s.threshold }

// SetEnabled toggles the stage; a disabled stage passes blocks through
func (s *Stage) SetEnabled(enabled bool) { s.enabled = enabled }

// Enabled reports whether denoising is applied
func (s *Stage) Enabled() bool { return s.enabled }

// Process denoises in place and returns the same frame
func (s *Stage) Process(in audio.Frame) (audio.Frame, error) {
	if !in.IsMono() {
		return audio.Frame{}, audio.ErrNotMono
	}
	if !s.enabled {
		return in, nil
	}
	s.denoiser.DenoiseInto(in.Samples, in.Samples, s.threshold)
	return in, nil
}
