package spatial

import (
	"math"
	"time"

	"github.com/teslashibe/go-hush/internal/audio"
)

// Linear distance model parameters
const (
	refDistance   = 1.0
	maxDistance   = 10000.0
	rolloffFactor = 1.0
)

// PannerConfig configures the spatial panner
type PannerConfig struct {
	Radius       float64
	TimeConstant time.Duration
	SampleRate   float64
}

// DefaultPannerConfig returns the stock panner settings at 48 kHz
func DefaultPannerConfig() PannerConfig {
	return PannerConfig{
		Radius:       DefaultRadius,
		TimeConstant: DefaultTimeConstant,
		SampleRate:   48000,
	}
}

// Panner renders mono blocks as stereo, positioned by azimuth.
//
// Position changes glide per sample with the configured time constant so an
// azimuth change during playback does not click.
type Panner struct {
	cfg     PannerConfig
	azimuth int
	x, y, z *Smoother
}

// NewPanner creates a panner whose source starts straight ahead and glides
// toward azimuthDeg.
func NewPanner(cfg PannerConfig, azimuthDeg int) *Panner {
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultRadius
	}

	front := PositionFor(0, cfg.Radius)
	p := &Panner{
		cfg: cfg,
		x:   NewSmoother(front.X, cfg.TimeConstant, cfg.SampleRate),
		y:   NewSmoother(front.Y, cfg.TimeConstant, cfg.SampleRate),
		z:   NewSmoother(front.Z, cfg.TimeConstant, cfg.SampleRate),
	}
	p.SetAzimuth(azimuthDeg)
	return p
}

// Name implements audio.Stage
func (p *Panner) Name() string { return "panner" }

// SetAzimuth retargets the source position
func (p *Panner) SetAzimuth(deg int) {
	p.azimuth = NormalizeDegrees(deg)
	target := PositionFor(p.azimuth, p.cfg.Radius)
	p.x.SetTarget(target.X)
	p.y.SetTarget(target.Y)
	p.z.SetTarget(target.Z)
}

// Azimuth returns the target azimuth in degrees
func (p *Panner) Azimuth() int { return p.azimuth }

// Position returns the current, smoothed source position
func (p *Panner) Position() Position {
	return Position{X: p.x.Value(), Y: p.y.Value(), Z: p.z.Value()}
}

// Target returns the position the source is gliding toward
func (p *Panner) Target() Position {
	return Position{X: p.x.Target(), Y: p.y.Target(), Z: p.z.Target()}
}

// Reset puts the source back in front of the listener, keeping the target
func (p *Panner) Reset() {
	front := PositionFor(0, p.cfg.Radius)
	p.x.Reset(front.X)
	p.y.Reset(front.Y)
	p.z.Reset(front.Z)
	p.SetAzimuth(p.azimuth)
}

// Process renders a mono frame into an interleaved stereo frame
func (p *Panner) Process(in audio.Frame) (audio.Frame, error) {
	if !in.IsMono() {
		return audio.Frame{}, audio.ErrNotMono
	}

	out := make([]float32, len(in.Samples)*2)
	for i, s := range in.Samples {
		pos := Position{X: p.x.Next(), Y: p.y.Next(), Z: p.z.Next()}
		left, right := EqualPowerGains(pos)
		gain := DistanceGain(pos.Distance())

		out[2*i] = float32(float64(s) * left * gain)
		out[2*i+1] = float32(float64(s) * right * gain)
	}
	return audio.Frame{Samples: out, Channels: 2}, nil
}

// EqualPowerGains returns left/right gains for a mono source at pos.
// Sources behind the listener are folded onto the frontal hemisphere.
func EqualPowerGains(pos Position) (left, right float64) {
	var az float64
	if pos.X != 0 || pos.Z != 0 {
		az = math.Atan2(pos.X, -pos.Z) * 180 / math.Pi
	}

	if az < -90 {
		az = -180 - az
	} else if az > 90 {
		az = 180 - az
	}

	x := (az + 90) / 180
	return math.Cos(x * math.Pi / 2), math.Sin(x * math.Pi / 2)
}

// DistanceGain applies the linear distance attenuation model
func DistanceGain(d float64) float64 {
	d = math.Min(math.Max(d, refDistance), maxDistance)
	return 1 - rolloffFactor*(d-refDistance)/(maxDistance-refDistance)
}
