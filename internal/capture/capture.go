// Package capture provides the audio sources and sinks the pipeline runs
// between: a synthetic generator, arecord/aplay subprocesses and, when built
// with the portaudio tag, PortAudio devices.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/teslashibe/go-hush/internal/audio"
)

// Capture failures. Session start wraps one of these so the daemon can tell
// the user what went wrong.
var (
	ErrSourceNotFound    = errors.New("capture: no audio source found")
	ErrSourceNotReadable = errors.New("capture: audio source not readable")
	ErrPermissionDenied  = errors.New("capture: permission denied")
	ErrCaptureAborted    = errors.New("capture: capture aborted")

	// ErrUnknownBackend is returned by Open for an unsupported backend
	ErrUnknownBackend = errors.New("capture: unknown backend")
)

// UserMessage turns a capture failure into something a user can act on
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceNotFound):
		return "No microphone was found. Connect an input device and try again."
	case errors.Is(err, ErrSourceNotReadable):
		return "The microphone is in use by another application or could not be read."
	case errors.Is(err, ErrPermissionDenied):
		return "Access to the microphone was denied. Check device permissions."
	case errors.Is(err, ErrCaptureAborted):
		return "Audio capture was aborted."
	default:
		return "Audio capture failed: " + err.Error()
	}
}

// classify maps process and OS errors onto the capture taxonomy
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSourceNotFound), errors.Is(err, ErrSourceNotReadable),
		errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrCaptureAborted):
		return err
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrCaptureAborted, err)
	default:
		return fmt.Errorf("%w: %v", ErrSourceNotReadable, err)
	}
}

// Source produces mono blocks
type Source interface {
	Name() string
	Read(ctx context.Context) (audio.Frame, error)
	Close() error
}

// Sink consumes mono or stereo blocks
type Sink interface {
	Name() string
	Write(f audio.Frame) error
	Close() error
}

// Backends
const (
	BackendGenerator = "generator"
	BackendExec      = "exec"
	BackendPortAudio = "portaudio"
)

// Config holds capture and playback configuration
type Config struct {
	Backend     string `mapstructure:"backend"`
	CaptureCmd  string `mapstructure:"capture_cmd"`  // e.g. "arecord"
	PlaybackCmd string `mapstructure:"playback_cmd"` // e.g. "aplay"
	Device      string `mapstructure:"device"`       // ALSA or PortAudio device name, empty for default

	// Generator settings
	Frequency      float64 `mapstructure:"frequency"`
	Amplitude      float64 `mapstructure:"amplitude"`
	NoiseAmplitude float64 `mapstructure:"noise_amplitude"`
	BurstBlocks    int     `mapstructure:"burst_blocks"`
	GapBlocks      int     `mapstructure:"gap_blocks"`
	Seed           uint64  `mapstructure:"seed"`

	// Filled in from the pipeline config
	SampleRate int  `mapstructure:"-"`
	BlockSize  int  `mapstructure:"-"`
	Realtime   bool `mapstructure:"-"`
}

// DefaultConfig returns the generator backend at 48 kHz
func DefaultConfig() Config {
	return Config{
		Backend:        BackendGenerator,
		CaptureCmd:     "arecord",
		PlaybackCmd:    "aplay",
		Frequency:      220,
		Amplitude:      0.1,
		NoiseAmplitude: 0.01,
		BurstBlocks:    375,
		GapBlocks:      375,
		SampleRate:     48000,
		BlockSize:      128,
		Realtime:       true,
	}
}

// BlockDuration is the wall-clock length of one block
func (c Config) BlockDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// Open creates the source and sink for the configured backend. Failures wrap
// one of the capture errors.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Source, Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendGenerator, "":
		return NewGenerator(cfg), NewDiscard(), nil

	case BackendExec:
		if !IsAvailable(cfg) {
			return nil, nil, fmt.Errorf("%w: %s or %s not installed", ErrSourceNotFound, cfg.CaptureCmd, cfg.PlaybackCmd)
		}
		src, err := NewExecSource(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		sink, err := NewExecSink(ctx, cfg, logger)
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		return src, sink, nil

	case BackendPortAudio:
		return openPortAudio(cfg, logger)

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
