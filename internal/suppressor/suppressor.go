// Package suppressor wraps the noise-suppression collaborator that sits
// between the wavelet stage and the post-process stage.
//
// The collaborator is opaque: it takes mono blocks and returns mono blocks of
// the same length, possibly delayed by an unspecified latency.
package suppressor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-hush/internal/audio"
)

var (
	// ErrNotStarted is returned when a stopped session is used
	ErrNotStarted = errors.New("suppressor: session not started")

	// ErrUnknownKind is returned by New for an unsupported kind
	ErrUnknownKind = errors.New("suppressor: unknown kind")
)

// Supported kinds
const (
	KindBypass   = "bypass"
	KindSpectral = "spectral"
	KindRemote   = "remote"
)

// Track describes the mono stream handed to the collaborator
type Track struct {
	ID         string
	SampleRate int
	BlockSize  int
}

// Suppressor starts processing sessions bound to a track
type Suppressor interface {
	Name() string
	Start(ctx context.Context, track Track) (Session, error)
}

// Session is a started collaborator. Process is called from the audio
// goroutine only. Stop may be called more than once.
type Session interface {
	Process(in audio.Frame) (audio.Frame, error)
	Stop() error
}

// Config selects and configures a suppressor
type Config struct {
	Kind          string        `mapstructure:"kind"`
	URL           string        `mapstructure:"url"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	LearnBlocks   int           `mapstructure:"learn_blocks"`
	SpectralFloor float64       `mapstructure:"spectral_floor"`
	Strength      float64       `mapstructure:"strength"`
}

// DefaultConfig returns a spectral suppressor
func DefaultConfig() Config {
	return Config{
		Kind:          KindSpectral,
		URL:           "ws://localhost:9100/suppress",
		DialTimeout:   3 * time.Second,
		LearnBlocks:   DefaultLearnBlocks,
		SpectralFloor: DefaultSpectralFloor,
		Strength:      DefaultStrength,
	}
}

// New builds the suppressor named by cfg.Kind
func New(cfg Config, logger *slog.Logger) (Suppressor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Kind {
	case KindBypass, "":
		return Bypass{}, nil
	case KindSpectral:
		return NewSpectral(SpectralConfig{
			LearnBlocks: cfg.LearnBlocks,
			Floor:       cfg.SpectralFloor,
			Strength:    cfg.Strength,
		}, logger), nil
	case KindRemote:
		return NewRemote(RemoteConfig{
			URL:         cfg.URL,
			DialTimeout: cfg.DialTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Stage adapts a started session to audio.Stage
type Stage struct {
	Session Session
}

// Name implements audio.Stage
func (Stage) Name() string { return "suppressor" }

// Process implements audio.Stage
func (s Stage) Process(in audio.Frame) (audio.Frame, error) {
	if s.Session == nil {
		return audio.Frame{}, ErrNotStarted
	}
	if !in.IsMono() {
		return audio.Frame{}, audio.ErrNotMono
	}
	return s.Session.Process(in)
}
