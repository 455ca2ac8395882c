// Package postprocess gates denoised audio on voice activity.
//
// Speech blocks pass through, with a short linear fade-in on the first block
// after silence. Silent blocks are replaced by low-level white comfort noise
// so the listener never hears a hard digital mute.
package postprocess

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/teslashibe/go-hush/internal/audio"
)

// Defaults tuned for input that already went through a noise suppressor
const (
	DefaultVADThreshold   = 0.001
	DefaultFadeInSamples  = 64
	DefaultNoiseAmplitude = 0.001
)

// Config configures the post-processor
type Config struct {
	VADThreshold   float64 // RMS above this counts as speech
	FadeInSamples  int     // Length of the silence->speech ramp
	NoiseAmplitude float64 // Comfort noise is uniform in [-a, a]
}

// DefaultConfig returns the stock gate settings
func DefaultConfig() Config {
	return Config{
		VADThreshold:   DefaultVADThreshold,
		FadeInSamples:  DefaultFadeInSamples,
		NoiseAmplitude: DefaultNoiseAmplitude,
	}
}

// RandSource yields uniform values in [0, 1). *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// Option customizes a Processor
type Option func(*Processor)

// WithRand injects the comfort noise random source
func WithRand(r RandSource) Option {
	return func(p *Processor) {
		if r != nil {
			p.rng = r
		}
	}
}

// WithLogger sets the logger used for speech/silence transitions
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Stats counts classified blocks
type Stats struct {
	SpeechBlocks  uint64  `json:"speech_blocks"`
	SilenceBlocks uint64  `json:"silence_blocks"`
	FadeIns       uint64  `json:"fade_ins"`
	LastRMS       float64 `json:"last_rms"`
	Speaking      bool    `json:"speaking"`
}

// Processor is the stateful VAD gate. It is driven by a single goroutine.
type Processor struct {
	cfg    Config
	rng    RandSource
	logger *slog.Logger

	previousWasSpeech bool
	stats             Stats
}

// New creates a post-processor that assumes silence before the first block
func New(cfg Config, opts ...Option) *Processor {
	if cfg.FadeInSamples < 0 {
		cfg.FadeInSamples = 0
	}
	if cfg.NoiseAmplitude < 0 {
		cfg.NoiseAmplitude = -cfg.NoiseAmplitude
	}

	seed := uint64(time.Now().UnixNano())
	p := &Processor{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed>>1|1)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements audio.Stage
func (p *Processor) Name() string { return "postprocess" }

// Process classifies the block and returns either gated speech or comfort noise.
// The returned frame reuses the input buffer.
func (p *Processor) Process(in audio.Frame) (audio.Frame, error) {
	if !in.IsMono() {
		return audio.Frame{}, audio.ErrNotMono
	}

	rms := audio.RMS(in.Samples)
	isSpeech := rms > p.cfg.VADThreshold
	p.stats.LastRMS = rms

	if isSpeech {
		if !p.previousWasSpeech {
			p.fadeIn(in.Samples)
			p.stats.FadeIns++
			p.logger.Debug("speech onset", "rms", rms)
		}
		p.previousWasSpeech = true
		p.stats.SpeechBlocks++
		p.stats.Speaking = true
		return in, nil
	}

	if p.previousWasSpeech {
		p.logger.Debug("speech ended", "rms", rms)
	}
	p.comfortNoise(in.Samples)
	p.previousWasSpeech = false
	p.stats.SilenceBlocks++
	p.stats.Speaking = false
	return in, nil
}

// fadeIn ramps sample i by i/FadeInSamples over the first FadeInSamples samples
func (p *Processor) fadeIn(samples []float32) {
	n := p.cfg.FadeInSamples
	for i := 0; i < n && i < len(samples); i++ {
		samples[i] *= float32(i) / float32(n)
	}
}

func (p *Processor) comfortNoise(samples []float32) {
	amp := p.cfg.NoiseAmplitude
	limit := float32(amp)
	for i := range samples {
		// float32 rounding can land just past amp
		v := float32((p.rng.Float64()*2 - 1) * amp)
		samples[i] = min(max(v, -limit), limit)
	}
}

// PreviousWasSpeech exposes the VAD state carried into the next block
func (p *Processor) PreviousWasSpeech() bool { return p.previousWasSpeech }

// Reset returns the gate to its initial "silence" state
func (p *Processor) Reset() {
	p.previousWasSpeech = false
	p.stats.Speaking = false
}

// Stats returns block counters
func (p *Processor) Stats() Stats { return p.stats }

// Config returns the gate settings
func (p *Processor) Config() Config { return p.cfg }
