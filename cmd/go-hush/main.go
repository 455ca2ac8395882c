// go-hush: real-time denoising daemon
// Runs a mono capture through wavelet shrinkage, a noise suppressor and a VAD
// gate, places it in a stereo field and exposes a control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/teslashibe/go-hush/internal/capture"
	"github.com/teslashibe/go-hush/internal/config"
	"github.com/teslashibe/go-hush/internal/health"
	"github.com/teslashibe/go-hush/internal/metrics"
	"github.com/teslashibe/go-hush/internal/server"
	"github.com/teslashibe/go-hush/internal/session"
	"github.com/teslashibe/go-hush/internal/suppressor"
)

var (
	version     = "0.3.0"
	configPath  = flag.String("config", "/etc/go-hush/config.yaml", "config file path")
	showVersion = flag.Bool("version", false, "print version and exit")
	debug       = flag.Bool("debug", false, "enable debug logging")
	useMock     = flag.Bool("mock", false, "use the synthetic signal generator instead of a capture device")
	enable      = flag.Bool("enable", false, "start with processing enabled")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-hush %s\n", version)
		return 0
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}

	// Override from flags
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if *useMock {
		cfg.Capture.Backend = capture.BackendGenerator
	}
	if *enable {
		cfg.Pipeline.EnableOnStart = true
	}

	// Setup logging
	logger := setupLogger(cfg.Logging)

	logger.Info("starting go-hush",
		"version", version,
		"config", *configPath,
		"port", cfg.Server.Port,
		"capture", cfg.Capture.Backend,
		"suppressor", cfg.Suppressor.Kind,
	)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := health.NewChecker(version)
	m := metrics.New()

	// Open capture and playback
	source, sink, err := capture.Open(ctx, cfg.CaptureConfig(), logger)
	if err != nil {
		logger.Error("failed to open audio", "error", err)
		fmt.Fprintln(os.Stderr, capture.UserMessage(err))
		return 1
	}

	sup, err := suppressor.New(cfg.Suppressor, logger)
	if err != nil {
		logger.Error("failed to create suppressor", "error", err)
		source.Close()
		sink.Close()
		return 1
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithHealth(checker),
	}
	if seed := cfg.PostProcess.Seed; seed != 0 {
		opts = append(opts, session.WithRand(rand.New(rand.NewPCG(seed, seed))))
	}

	sess, err := session.New(cfg.SessionConfig(), source, sink, sup, opts...)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		source.Close()
		sink.Close()
		return 1
	}

	logger.Info("session ready",
		"session_id", sess.ID(),
		"sample_rate", cfg.Pipeline.SampleRate,
		"block_size", cfg.Pipeline.BlockSize,
		"block_duration", sess.Config().BlockDuration(),
	)

	if cfg.Pipeline.EnableOnStart {
		if err := sess.Enable(ctx); err != nil {
			// Raw passthrough keeps running; the user can retry via the API
			logger.Warn("processing not enabled at startup", "error", err)
		}
	}

	// Run the pipeline in background
	var exitCode atomic.Int32
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := sess.Run(ctx); err != nil {
			logger.Error("pipeline stopped", "error", err)
			if !errors.Is(err, session.ErrBlockFault) {
				fmt.Fprintln(os.Stderr, capture.UserMessage(err))
			}
			exitCode.Store(1)
			cancel()
		}
	}()

	// Create server
	srv := server.New(cfg.Server, sess, checker, m, logger, version)

	// Start WebSocket hub in background
	go srv.WSHub().Run(ctx)

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Print startup info
	printStartupBanner(cfg, version)

	// Wait for shutdown signal or a fatal pipeline error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		cfg.Server.GracefulTimeout,
	)
	defer shutdownCancel()

	// Stop in order: server -> pipeline -> session
	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	logger.Info("stopping pipeline...")
	cancel()
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop in time")
	}

	if err := sess.Close(); err != nil {
		logger.Warn("session close error", "error", err)
	}

	logger.Info("go-hush stopped", "stats", sess.State().Stats)
	return int(exitCode.Load())
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func printStartupBanner(cfg *config.Config, version string) {
	fmt.Println()
	fmt.Println("🤫 go-hush v" + version)
	fmt.Printf("   %d Hz, %d-sample blocks, %s capture, %s suppressor\n",
		cfg.Pipeline.SampleRate, cfg.Pipeline.BlockSize, cfg.Capture.Backend, cfg.Suppressor.Kind)
	fmt.Println()
	fmt.Printf("🚀 Running at http://0.0.0.0:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("   Endpoints:")
	fmt.Println("   GET  /health          - Health check")
	fmt.Println("   GET  /api/state       - Session state")
	fmt.Println("   POST /api/processing  - Enable or disable processing")
	fmt.Println("   PUT  /api/threshold   - Wavelet threshold")
	fmt.Println("   PUT  /api/azimuth     - Virtual source azimuth")
	fmt.Println("   PUT  /api/wavelet     - Toggle wavelet stage")
	fmt.Println("   GET  /api/topology    - Routing graph")
	fmt.Println("   GET  /api/taps        - Pre/post levels")
	fmt.Println("   WS   /api/control     - Live control channel")
	fmt.Println("   GET  /metrics         - Prometheus metrics")
	fmt.Println()
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()
}
