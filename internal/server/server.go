// Package server provides the HTTP control surface for go-hush
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-hush/internal/config"
	"github.com/teslashibe/go-hush/internal/health"
	"github.com/teslashibe/go-hush/internal/metrics"
	"github.com/teslashibe/go-hush/internal/protocol"
	"github.com/teslashibe/go-hush/internal/session"
)

// Server is the HTTP server for go-hush
type Server struct {
	app     *fiber.App
	cfg     config.ServerConfig
	sess    *session.Session
	ctl     control
	health  *health.Checker
	metrics *metrics.Metrics
	logger  *slog.Logger
	wsHub   *WSHub
	version string
}

// New creates a new HTTP server. sess, checker and m may be nil; the
// matching endpoints then answer 503.
func New(cfg config.ServerConfig, sess *session.Session, checker *health.Checker, m *metrics.Metrics, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-hush",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(LoggingMiddleware(logger))

	s := &Server{
		app:     app,
		cfg:     cfg,
		sess:    sess,
		ctl:     control{sess: sess},
		health:  checker,
		metrics: m,
		logger:  logger,
		wsHub:   NewWSHub(sess, cfg.BroadcastHz, logger),
		version: version,
	}

	if m != nil {
		s.registerClientGauge(m.Registry())
	}

	// Register routes
	s.registerRoutes()

	return s
}

func (s *Server) registerClientGauge(reg *prometheus.Registry) {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Name:      "websocket_clients",
		Help:      "Connected control channel clients",
	}, func() float64 {
		return float64(s.wsHub.ClientCount())
	})

	if err := reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			s.logger.Warn("failed to register websocket gauge", "error", err)
		}
	}
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	// Health check
	s.app.Get("/health", s.healthHandler)

	// Metrics endpoint
	s.app.Get("/metrics", s.metricsHandler())

	api := s.app.Group("/api")

	api.Get("/state", s.stateHandler)
	api.Get("/topology", s.topologyHandler)
	api.Get("/taps", s.tapsHandler)

	api.Post("/processing", s.processingHandler)
	api.Put("/threshold", s.thresholdHandler)
	api.Put("/azimuth", s.azimuthHandler)
	api.Put("/wavelet", s.waveletHandler)

	api.Get("/control", s.wsHub.UpgradeHandler())

	api.Get("/config", s.configHandler)
}

// healthHandler returns service health
func (s *Server) healthHandler(c *fiber.Ctx) error {
	if s.health == nil {
		return c.JSON(fiber.Map{
			"status":  health.StatusOK,
			"version": s.version,
		})
	}

	status := s.health.GetStatus()
	if status.Status == health.StatusUnhealthy {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(status)
}

// metricsHandler serves the Prometheus registry
func (s *Server) metricsHandler() fiber.Handler {
	if s.metrics == nil {
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusServiceUnavailable).SendString("# no metrics registry\n")
		}
	}
	return adaptor.HTTPHandler(s.metrics.Handler())
}

// stateHandler returns the session snapshot
func (s *Server) stateHandler(c *fiber.Ctx) error {
	if s.sess == nil {
		return s.fail(c, errNoSession)
	}
	return c.JSON(s.sess.State())
}

// topologyHandler returns the routing graph and the current audio chain
func (s *Server) topologyHandler(c *fiber.Ctx) error {
	if s.sess == nil {
		return s.fail(c, errNoSession)
	}

	topo := s.sess.Topology()
	chain, err := topo.Chain(session.NodeSource, session.NodeSink)
	if err != nil {
		return s.fail(c, err)
	}

	snap := topo.Snapshot()
	return c.JSON(fiber.Map{
		"active":     snap.Active,
		"edges":      snap.Edges,
		"persistent": snap.Persistent,
		"nodes":      topo.Nodes(),
		"chain":      chain,
	})
}

// tapResponse is one diagnostic tap
type tapResponse struct {
	Level   session.Level `json:"level"`
	Blocks  uint64        `json:"blocks"`
	Samples []float32     `json:"samples,omitempty"`
}

// tapsHandler returns both tap levels, and the sample windows unless
// ?samples=false
func (s *Server) tapsHandler(c *fiber.Ctx) error {
	if s.sess == nil {
		return s.fail(c, errNoSession)
	}

	withSamples := c.QueryBool("samples", true)
	tap := func(t *session.Tap) tapResponse {
		r := tapResponse{Level: t.Level(), Blocks: t.Blocks()}
		if withSamples {
			r.Samples = t.Samples()
		}
		return r
	}

	return c.JSON(fiber.Map{
		"pre":  tap(s.sess.PreTap()),
		"post": tap(s.sess.PostTap()),
	})
}

// processingHandler enables or disables the processed path
func (s *Server) processingHandler(c *fiber.Ctx) error {
	var cmd protocol.ProcessingCommand
	if err := c.BodyParser(&cmd); err != nil {
		return s.badRequest(c, err)
	}

	if err := s.ctl.setProcessing(c.UserContext(), cmd); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.sess.State())
}

// thresholdHandler updates the wavelet threshold
func (s *Server) thresholdHandler(c *fiber.Ctx) error {
	var cmd protocol.ThresholdCommand
	if err := c.BodyParser(&cmd); err != nil {
		return s.badRequest(c, err)
	}

	if err := s.ctl.setThreshold(cmd); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"threshold": cmd.Threshold})
}

// azimuthHandler moves the virtual source and returns the snapped azimuth
func (s *Server) azimuthHandler(c *fiber.Ctx) error {
	var cmd protocol.AzimuthCommand
	if err := c.BodyParser(&cmd); err != nil {
		return s.badRequest(c, err)
	}

	azimuth, err := s.ctl.setAzimuth(cmd)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"azimuth": azimuth})
}

// waveletHandler toggles wavelet shrinkage
func (s *Server) waveletHandler(c *fiber.Ctx) error {
	var cmd protocol.ProcessingCommand
	if err := c.BodyParser(&cmd); err != nil {
		return s.badRequest(c, err)
	}

	if err := s.ctl.setWavelet(cmd); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"wavelet_enabled": cmd.Enabled})
}

// configHandler returns the pipeline and server configuration
func (s *Server) configHandler(c *fiber.Ctx) error {
	resp := fiber.Map{
		"server": fiber.Map{
			"port":             s.cfg.Port,
			"read_timeout_ms":  s.cfg.ReadTimeout.Milliseconds(),
			"write_timeout_ms": s.cfg.WriteTimeout.Milliseconds(),
			"broadcast_hz":     s.cfg.BroadcastHz,
		},
	}
	if s.sess != nil {
		cfg := s.sess.Config()
		resp["pipeline"] = fiber.Map{
			"sample_rate":       cfg.SampleRate,
			"block_size":        cfg.BlockSize,
			"block_duration_us": cfg.BlockDuration().Microseconds(),
			"angle_step":        cfg.AngleStep,
			"radius":            cfg.Radius,
		}
	}
	return c.JSON(resp)
}

func (s *Server) badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fmt.Sprintf("invalid request body: %v", err),
	})
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Warn("control request failed",
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"port", s.cfg.Port,
	)

	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Port))
}

// WSHub returns the WebSocket hub
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close WebSocket hub
	s.wsHub.Close()

	// Shutdown Fiber with timeout from context
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
