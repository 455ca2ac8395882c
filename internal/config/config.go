// Package config provides configuration management for go-hush
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-hush/internal/capture"
	"github.com/teslashibe/go-hush/internal/postprocess"
	"github.com/teslashibe/go-hush/internal/session"
	"github.com/teslashibe/go-hush/internal/suppressor"
)

// Config is the root configuration structure
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	PostProcess PostProcessConfig `mapstructure:"postprocess"`
	Spatial     SpatialConfig     `mapstructure:"spatial"`
	Suppressor  suppressor.Config `mapstructure:"suppressor"`
	Capture     capture.Config    `mapstructure:"capture"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	BroadcastHz     int           `mapstructure:"broadcast_hz"`
}

// PipelineConfig configures block processing
type PipelineConfig struct {
	SampleRate     int     `mapstructure:"sample_rate"`
	BlockSize      int     `mapstructure:"block_size"`
	Threshold      float64 `mapstructure:"threshold"`
	WaveletEnabled bool    `mapstructure:"wavelet_enabled"`
	EnableOnStart  bool    `mapstructure:"enable_on_start"`
	TapSize        int     `mapstructure:"tap_size"`
}

// PostProcessConfig configures the VAD gate
type PostProcessConfig struct {
	VADThreshold   float64 `mapstructure:"vad_threshold"`
	FadeInSamples  int     `mapstructure:"fade_in_samples"`
	NoiseAmplitude float64 `mapstructure:"noise_amplitude"`
	Seed           uint64  `mapstructure:"seed"` // 0 picks a time-based seed
}

// SpatialConfig configures the virtual source position
type SpatialConfig struct {
	Radius         float64       `mapstructure:"radius"`
	AngleStep      int           `mapstructure:"angle_step"`
	Smoothing      time.Duration `mapstructure:"smoothing"`
	InitialAzimuth int           `mapstructure:"initial_azimuth"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 5 * time.Second,
			BroadcastHz:     10,
		},
		Pipeline: PipelineConfig{
			SampleRate:     48000,
			BlockSize:      128,
			Threshold:      0.1,
			WaveletEnabled: true,
			TapSize:        2048,
		},
		PostProcess: PostProcessConfig{
			VADThreshold:   postprocess.DefaultVADThreshold,
			FadeInSamples:  postprocess.DefaultFadeInSamples,
			NoiseAmplitude: postprocess.DefaultNoiseAmplitude,
		},
		Spatial: SpatialConfig{
			Radius:    5,
			AngleStep: 15,
			Smoothing: 10 * time.Millisecond,
		},
		Suppressor: suppressor.DefaultConfig(),
		Capture: capture.Config{
			Backend:        capture.BackendGenerator,
			CaptureCmd:     "arecord",
			PlaybackCmd:    "aplay",
			Frequency:      220,
			Amplitude:      0.1,
			NoiseAmplitude: 0.01,
			BurstBlocks:    375,
			GapBlocks:      375,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file and environment
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			// Missing file is okay, we have defaults
			fmt.Fprintf(os.Stderr, "Warning: could not read config at %s, using defaults: %v\n", path, err)
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("GOHUSH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	// Server defaults
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.graceful_timeout", "5s")
	v.SetDefault("server.broadcast_hz", d.Server.BroadcastHz)

	// Pipeline defaults
	v.SetDefault("pipeline.sample_rate", d.Pipeline.SampleRate)
	v.SetDefault("pipeline.block_size", d.Pipeline.BlockSize)
	v.SetDefault("pipeline.threshold", d.Pipeline.Threshold)
	v.SetDefault("pipeline.wavelet_enabled", d.Pipeline.WaveletEnabled)
	v.SetDefault("pipeline.enable_on_start", d.Pipeline.EnableOnStart)
	v.SetDefault("pipeline.tap_size", d.Pipeline.TapSize)

	// Post-process defaults
	v.SetDefault("postprocess.vad_threshold", d.PostProcess.VADThreshold)
	v.SetDefault("postprocess.fade_in_samples", d.PostProcess.FadeInSamples)
	v.SetDefault("postprocess.noise_amplitude", d.PostProcess.NoiseAmplitude)
	v.SetDefault("postprocess.seed", d.PostProcess.Seed)

	// Spatial defaults
	v.SetDefault("spatial.radius", d.Spatial.Radius)
	v.SetDefault("spatial.angle_step", d.Spatial.AngleStep)
	v.SetDefault("spatial.smoothing", "10ms")
	v.SetDefault("spatial.initial_azimuth", d.Spatial.InitialAzimuth)

	// Suppressor defaults
	v.SetDefault("suppressor.kind", d.Suppressor.Kind)
	v.SetDefault("suppressor.url", d.Suppressor.URL)
	v.SetDefault("suppressor.dial_timeout", "3s")
	v.SetDefault("suppressor.learn_blocks", d.Suppressor.LearnBlocks)
	v.SetDefault("suppressor.spectral_floor", d.Suppressor.SpectralFloor)
	v.SetDefault("suppressor.strength", d.Suppressor.Strength)

	// Capture defaults
	v.SetDefault("capture.backend", d.Capture.Backend)
	v.SetDefault("capture.capture_cmd", d.Capture.CaptureCmd)
	v.SetDefault("capture.playback_cmd", d.Capture.PlaybackCmd)
	v.SetDefault("capture.device", d.Capture.Device)
	v.SetDefault("capture.frequency", d.Capture.Frequency)
	v.SetDefault("capture.amplitude", d.Capture.Amplitude)
	v.SetDefault("capture.noise_amplitude", d.Capture.NoiseAmplitude)
	v.SetDefault("capture.burst_blocks", d.Capture.BurstBlocks)
	v.SetDefault("capture.gap_blocks", d.Capture.GapBlocks)
	v.SetDefault("capture.seed", d.Capture.Seed)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.BroadcastHz < 1 || c.Server.BroadcastHz > 100 {
		return fmt.Errorf("broadcast_hz must be between 1 and 100, got %d", c.Server.BroadcastHz)
	}

	if c.Pipeline.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.Pipeline.SampleRate)
	}

	if c.Pipeline.BlockSize < 2 {
		return fmt.Errorf("block_size must be at least 2, got %d", c.Pipeline.BlockSize)
	}

	if !(c.Pipeline.Threshold >= 0) || math.IsInf(c.Pipeline.Threshold, 1) {
		return fmt.Errorf("threshold must be a finite value >= 0, got %f", c.Pipeline.Threshold)
	}

	if c.PostProcess.VADThreshold < 0 {
		return fmt.Errorf("vad_threshold must be >= 0, got %f", c.PostProcess.VADThreshold)
	}

	if c.PostProcess.FadeInSamples < 0 {
		return fmt.Errorf("fade_in_samples must be >= 0, got %d", c.PostProcess.FadeInSamples)
	}

	if c.PostProcess.NoiseAmplitude < 0 {
		return fmt.Errorf("noise_amplitude must be >= 0, got %f", c.PostProcess.NoiseAmplitude)
	}

	if c.Spatial.Radius <= 0 {
		return fmt.Errorf("radius must be positive, got %f", c.Spatial.Radius)
	}

	if c.Spatial.AngleStep < 1 || 360%c.Spatial.AngleStep != 0 {
		return fmt.Errorf("angle_step must divide 360, got %d", c.Spatial.AngleStep)
	}

	if c.Spatial.InitialAzimuth < 0 || c.Spatial.InitialAzimuth >= 360 {
		return fmt.Errorf("initial_azimuth must be in [0, 360), got %d", c.Spatial.InitialAzimuth)
	}

	switch c.Suppressor.Kind {
	case suppressor.KindBypass, suppressor.KindSpectral:
	case suppressor.KindRemote:
		if c.Suppressor.URL == "" {
			return fmt.Errorf("suppressor.url is required for the remote suppressor")
		}
	default:
		return fmt.Errorf("unknown suppressor kind %q", c.Suppressor.Kind)
	}

	switch c.Capture.Backend {
	case capture.BackendGenerator, capture.BackendExec, capture.BackendPortAudio:
	default:
		return fmt.Errorf("unknown capture backend %q", c.Capture.Backend)
	}

	return nil
}

// SessionConfig maps the file settings onto a pipeline session
func (c *Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.SampleRate = c.Pipeline.SampleRate
	cfg.BlockSize = c.Pipeline.BlockSize
	cfg.Threshold = c.Pipeline.Threshold
	cfg.WaveletEnabled = c.Pipeline.WaveletEnabled
	cfg.TapSize = c.Pipeline.TapSize
	cfg.Azimuth = c.Spatial.InitialAzimuth
	cfg.AngleStep = c.Spatial.AngleStep
	cfg.Radius = c.Spatial.Radius
	cfg.Smoothing = c.Spatial.Smoothing
	cfg.PostProcess = postprocess.Config{
		VADThreshold:   c.PostProcess.VADThreshold,
		FadeInSamples:  c.PostProcess.FadeInSamples,
		NoiseAmplitude: c.PostProcess.NoiseAmplitude,
	}
	return cfg
}

// CaptureConfig fills the capture settings from the pipeline
func (c *Config) CaptureConfig() capture.Config {
	cfg := c.Capture
	cfg.SampleRate = c.Pipeline.SampleRate
	cfg.BlockSize = c.Pipeline.BlockSize
	cfg.Realtime = true
	return cfg
}
