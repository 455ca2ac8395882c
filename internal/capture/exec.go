package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-hush/internal/audio"
	"github.com/teslashibe/go-hush/internal/protocol"
)

// ExecSource streams float32 PCM from a long-running capture command
// (arecord by default).
type ExecSource struct {
	cfg    Config
	logger *slog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte

	closeOnce sync.Once

	blocksRead atomic.Uint64
}

// captureArgs builds: arecord -f FLOAT_LE -r <rate> -c 1 -t raw -q [-D dev]
func captureArgs(cfg Config) []string {
	args := []string{
		"-f", "FLOAT_LE",
		"-r", strconv.Itoa(cfg.SampleRate),
		"-c", "1",
		"-t", "raw",
		"-q",
	}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return args
}

// playbackArgs builds: aplay -f FLOAT_LE -r <rate> -c 2 -t raw -q [-D dev]
func playbackArgs(cfg Config) []string {
	args := []string{
		"-f", "FLOAT_LE",
		"-r", strconv.Itoa(cfg.SampleRate),
		"-c", "2",
		"-t", "raw",
		"-q",
	}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return args
}

// NewExecSource starts the capture command
func NewExecSource(ctx context.Context, cfg Config, logger *slog.Logger) (*ExecSource, error) {
	return newExecSource(ctx, cfg, captureArgs(cfg), logger)
}

func newExecSource(ctx context.Context, cfg Config, args []string, logger *slog.Logger) (*ExecSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &ExecSource{
		cfg:    cfg,
		logger: logger,
		buf:    make([]byte, cfg.BlockSize*4),
	}

	s.cmd = exec.CommandContext(ctx, cfg.CaptureCmd, args...)

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", classify(err))
	}
	s.stdout = stdout

	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.CaptureCmd, classify(err))
	}

	logger.Info("audio capture started",
		"cmd", cfg.CaptureCmd,
		"sample_rate", cfg.SampleRate,
		"block_size", cfg.BlockSize,
	)
	return s, nil
}

// Name implements Source
func (s *ExecSource) Name() string { return BackendExec }

// Read blocks until one full block has been captured
func (s *ExecSource) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, classify(err)
	}

	if _, err := io.ReadFull(s.stdout, s.buf); err != nil {
		if ctx.Err() != nil {
			return audio.Frame{}, classify(ctx.Err())
		}
		return audio.Frame{}, fmt.Errorf("%w: %s: %v", ErrCaptureAborted, s.cfg.CaptureCmd, err)
	}

	samples, err := protocol.DecodePCM(nil, s.buf)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("%w: %v", ErrSourceNotReadable, err)
	}
	s.blocksRead.Add(1)
	return audio.Mono(samples), nil
}

// BlocksRead returns how many blocks were captured
func (s *ExecSource) BlocksRead() uint64 { return s.blocksRead.Load() }

// Close stops the capture command
func (s *ExecSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait()
		s.logger.Info("audio capture stopped", "blocks", s.blocksRead.Load())
	})
	return nil
}

// ExecSink streams interleaved stereo float32 PCM to a long-running playback
// command (aplay by default). Mono blocks are duplicated to both channels.
type ExecSink struct {
	cfg    Config
	logger *slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser
	buf   []byte

	closeOnce sync.Once

	blocksPlayed   atomic.Uint64
	playbackErrors atomic.Uint64
}

// NewExecSink starts the playback command
func NewExecSink(ctx context.Context, cfg Config, logger *slog.Logger) (*ExecSink, error) {
	return newExecSink(ctx, cfg, playbackArgs(cfg), logger)
}

func newExecSink(ctx context.Context, cfg Config, args []string, logger *slog.Logger) (*ExecSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &ExecSink{cfg: cfg, logger: logger}
	s.cmd = exec.CommandContext(ctx, cfg.PlaybackCmd, args...)

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	s.stdin = stdin

	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.PlaybackCmd, err)
	}

	logger.Info("audio playback started", "cmd", cfg.PlaybackCmd, "sample_rate", cfg.SampleRate)
	return s, nil
}

// Name implements Sink
func (s *ExecSink) Name() string { return BackendExec }

// Write implements Sink
func (s *ExecSink) Write(f audio.Frame) error {
	if f.Channels != 2 {
		f = audio.Upmix(f, 2)
	}
	s.buf = protocol.AppendPCM(s.buf[:0], f.Samples)

	if _, err := s.stdin.Write(s.buf); err != nil {
		s.playbackErrors.Add(1)
		return fmt.Errorf("playback write: %w", err)
	}
	s.blocksPlayed.Add(1)
	return nil
}

// Stats contains playback statistics
type Stats struct {
	BlocksPlayed   uint64 `json:"blocks_played"`
	PlaybackErrors uint64 `json:"playback_errors"`
}

// Stats returns playback statistics
func (s *ExecSink) Stats() Stats {
	return Stats{
		BlocksPlayed:   s.blocksPlayed.Load(),
		PlaybackErrors: s.playbackErrors.Load(),
	}
}

// Close ends the playback stream and waits for the command to drain
func (s *ExecSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stdin.Close()
		if werr := s.cmd.Wait(); werr != nil {
			err = fmt.Errorf("playback wait: %w", werr)
		}
		s.logger.Info("audio playback stopped", "blocks", s.blocksPlayed.Load())
	})
	return err
}

// IsAvailable checks if the capture and playback commands are installed
func IsAvailable(cfg Config) bool {
	if _, err := exec.LookPath(cfg.PlaybackCmd); err != nil {
		return false
	}
	_, err := exec.LookPath(cfg.CaptureCmd)
	return err == nil
}
