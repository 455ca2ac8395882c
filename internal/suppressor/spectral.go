package suppressor

import (
	"context"
	"log/slog"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/teslashibe/go-hush/internal/audio"
)

// Spectral subtraction defaults
const (
	DefaultLearnBlocks   = 20
	DefaultSpectralFloor = 0.05
	DefaultStrength      = 1.0

	// noise profile smoothing while learning
	noiseAlpha = 0.8
)

// SpectralConfig configures the in-process spectral suppressor
type SpectralConfig struct {
	// LearnBlocks is how many leading blocks are treated as noise
	LearnBlocks int
	// Floor is the minimum per-bin gain, in [0, 1]
	Floor float64
	// Strength scales the subtracted noise magnitude
	Strength float64
}

// Spectral learns a noise magnitude profile from the first blocks of a
// session, then subtracts it from every block in the frequency domain.
type Spectral struct {
	cfg    SpectralConfig
	logger *slog.Logger
}

// NewSpectral creates a spectral subtraction suppressor
func NewSpectral(cfg SpectralConfig, logger *slog.Logger) *Spectral {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LearnBlocks < 0 {
		cfg.LearnBlocks = 0
	}
	cfg.Floor = math.Min(math.Max(cfg.Floor, 0), 1)
	if cfg.Strength <= 0 {
		cfg.Strength = DefaultStrength
	}
	return &Spectral{cfg: cfg, logger: logger}
}

// Name implements Suppressor
func (s *Spectral) Name() string { return KindSpectral }

// Start implements Suppressor
func (s *Spectral) Start(ctx context.Context, track Track) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess := &spectralSession{cfg: s.cfg, logger: s.logger}
	if track.BlockSize > 0 {
		sess.resize(track.BlockSize)
	}
	s.logger.Debug("spectral suppressor started",
		"block_size", track.BlockSize,
		"learn_blocks", s.cfg.LearnBlocks,
	)
	return sess, nil
}

type spectralSession struct {
	cfg    SpectralConfig
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	fft     *fourier.FFT
	n       int
	seq     []float64
	coeffs  []complex128
	noise   []float64
	learned int
}

func (s *spectralSession) resize(n int) {
	s.n = n
	s.fft = fourier.NewFFT(n)
	s.seq = make([]float64, n)
	s.coeffs = make([]complex128, n/2+1)
	s.noise = make([]float64, n/2+1)
	s.learned = 0
}

func (s *spectralSession) Process(in audio.Frame) (audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return audio.Frame{}, ErrNotStarted
	}
	n := len(in.Samples)
	if n == 0 {
		return in, nil
	}
	if n != s.n {
		s.resize(n)
	}

	for i, v := range in.Samples {
		s.seq[i] = float64(v)
	}
	s.coeffs = s.fft.Coefficients(s.coeffs, s.seq)

	if s.learned < s.cfg.LearnBlocks {
		s.learn()
		return in, nil
	}

	for i, c := range s.coeffs {
		mag := cmplx.Abs(c)
		gain := s.cfg.Floor
		if mag > 0 {
			gain = math.Max(1-s.cfg.Strength*s.noise[i]/mag, s.cfg.Floor)
		}
		s.coeffs[i] = c * complex(gain, 0)
	}

	s.seq = s.fft.Sequence(s.seq, s.coeffs)

	// Coefficients followed by Sequence scales by n
	out := make([]float32, n)
	scale := 1 / float64(n)
	for i, v := range s.seq {
		out[i] = float32(v * scale)
	}
	return audio.Mono(out), nil
}

func (s *spectralSession) learn() {
	for i, c := range s.coeffs {
		mag := cmplx.Abs(c)
		if s.learned == 0 {
			s.noise[i] = mag
		} else {
			s.noise[i] = noiseAlpha*s.noise[i] + (1-noiseAlpha)*mag
		}
	}
	s.learned++
	if s.learned == s.cfg.LearnBlocks {
		s.logger.Debug("noise profile learned", "blocks", s.learned)
	}
}

func (s *spectralSession) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}
