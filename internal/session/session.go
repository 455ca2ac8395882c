// Package session owns the running pipeline: the capture source and sink, the
// processing stages, the routing graph between them and the Raw/Processing
// state machine that swaps that graph.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-hush/internal/audio"
	"github.com/teslashibe/go-hush/internal/capture"
	"github.com/teslashibe/go-hush/internal/graph"
	"github.com/teslashibe/go-hush/internal/health"
	"github.com/teslashibe/go-hush/internal/metrics"
	"github.com/teslashibe/go-hush/internal/postprocess"
	"github.com/teslashibe/go-hush/internal/spatial"
	"github.com/teslashibe/go-hush/internal/suppressor"
	"github.com/teslashibe/go-hush/internal/wavelet"
)

var (
	// ErrEnableFailed is returned when the processed path could not be
	// brought up. The session stays in raw mode.
	ErrEnableFailed = errors.New("session: enable processing failed")

	// ErrBlockFault is returned when a block could not be processed
	ErrBlockFault = errors.New("session: block fault")

	// ErrSessionClosed is returned after Close or a fatal block fault
	ErrSessionClosed = errors.New("session: closed")

	// ErrUpdateQueueFull is returned when parameter updates are not drained
	ErrUpdateQueueFull = errors.New("session: update queue full")

	// ErrInvalidConfig is returned by New for unusable settings
	ErrInvalidConfig = errors.New("session: invalid config")
)

// Mode is the routing state
type Mode string

const (
	ModeRaw        Mode = "raw"
	ModeProcessing Mode = "processing"
)

// Graph node names
const (
	NodeSource      = "source"
	NodeWavelet     = "wavelet"
	NodeSuppressor  = "suppressor"
	NodePostprocess = "postprocess"
	NodePanner      = "panner"
	NodeSink        = "sink"
	NodeMonitorPre  = "monitor.pre"
	NodeMonitorPost = "monitor.post"
)

// RawEdges routes the source straight to the sink
func RawEdges() []graph.Edge {
	return []graph.Edge{
		{From: NodeSource, To: NodeSink},
		{From: NodeSource, To: NodeMonitorPost},
	}
}

// ProcessedEdges routes the source through every stage
func ProcessedEdges() []graph.Edge {
	return []graph.Edge{
		{From: NodeSource, To: NodeWavelet},
		{From: NodeWavelet, To: NodeSuppressor},
		{From: NodeSuppressor, To: NodePostprocess},
		{From: NodePostprocess, To: NodePanner},
		{From: NodePanner, To: NodeSink},
		{From: NodePanner, To: NodeMonitorPost},
	}
}

// Config holds pipeline settings
type Config struct {
	SampleRate     int
	BlockSize      int
	Threshold      float64
	WaveletEnabled bool
	Azimuth        int
	AngleStep      int
	Radius         float64
	Smoothing      time.Duration
	PostProcess    postprocess.Config
	TapSize        int
	UpdateQueue    int
}

// DefaultConfig returns the stock pipeline at 48 kHz with 128-sample blocks
func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		BlockSize:      128,
		Threshold:      wavelet.DefaultThreshold,
		WaveletEnabled: true,
		AngleStep:      spatial.DefaultAngleStep,
		Radius:         spatial.DefaultRadius,
		Smoothing:      spatial.DefaultTimeConstant,
		PostProcess:    postprocess.DefaultConfig(),
		TapSize:        DefaultTapSize,
		UpdateQueue:    64,
	}
}

// BlockDuration is the real-time budget for one block
func (c Config) BlockDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records pipeline metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithHealth reports component health
func WithHealth(h *health.Checker) Option {
	return func(s *Session) { s.health = h }
}

// WithRand sets the comfort noise source
func WithRand(r postprocess.RandSource) Option {
	return func(s *Session) { s.rand = r }
}

type updateKind int

const (
	updateThreshold updateKind = iota
	updateAzimuth
	updateWavelet
)

type update struct {
	kind      updateKind
	threshold float64
	azimuth   int
	enabled   bool
}

// params are the requested control values
type params struct {
	threshold      float64
	azimuth        int
	waveletEnabled bool
}

// blockView is published after every block for lock-free readers
type blockView struct {
	position spatial.Position
	post     postprocess.Stats
}

// Session is one running denoiser instance
type Session struct {
	id      string
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	health  *health.Checker
	rand    postprocess.RandSource

	source     capture.Source
	sink       capture.Sink
	suppressor suppressor.Suppressor

	topo    *graph.Topology
	wavelet *wavelet.Stage
	post    *postprocess.Processor
	panner  *spatial.Panner
	pre     *Tap
	postTap *Tap

	updates chan update

	// modeMu serializes Enable, Disable and Close
	modeMu sync.Mutex

	// blockMu is held for a whole block; topology swaps take it too, so they
	// land between blocks
	blockMu    sync.Mutex
	stages     map[string]audio.Stage
	supSession suppressor.Session
	postFrom   string
	closed     bool

	stateMu   sync.RWMutex
	mode      Mode
	params    params
	fault     error
	listeners []func(mode, previous Mode)

	view atomic.Pointer[blockView]

	// Stats
	blocks   atomic.Uint64
	faults   atomic.Uint64
	overruns atomic.Uint64
	updated  atomic.Uint64
}

// New builds a session in raw mode. It owns source and sink from here on and
// closes them in Close.
func New(cfg Config, source capture.Source, sink capture.Sink, sup suppressor.Suppressor, opts ...Option) (*Session, error) {
	if source == nil || sink == nil {
		return nil, fmt.Errorf("%w: source and sink are required", ErrInvalidConfig)
	}
	if sup == nil {
		sup = suppressor.Bypass{}
	}
	if cfg.SampleRate <= 0 || cfg.BlockSize < 2 {
		return nil, fmt.Errorf("%w: sample_rate=%d block_size=%d", ErrInvalidConfig, cfg.SampleRate, cfg.BlockSize)
	}
	if err := spatial.ValidateAzimuth(cfg.Azimuth); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Azimuth = spatial.Snap(float64(cfg.Azimuth), cfg.AngleStep)
	if cfg.UpdateQueue <= 0 {
		cfg.UpdateQueue = DefaultConfig().UpdateQueue
	}
	if cfg.Radius <= 0 {
		cfg.Radius = spatial.DefaultRadius
	}

	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		logger:     slog.Default(),
		source:     source,
		sink:       sink,
		suppressor: sup,
		updates:    make(chan update, cfg.UpdateQueue),
		mode:       ModeRaw,
		postFrom:   NodeSource,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)

	var err error
	s.wavelet, err = wavelet.NewStage(cfg.BlockSize, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	s.wavelet.SetEnabled(cfg.WaveletEnabled)

	postOpts := []postprocess.Option{postprocess.WithLogger(s.logger)}
	if s.rand != nil {
		postOpts = append(postOpts, postprocess.WithRand(s.rand))
	}
	s.post = postprocess.New(cfg.PostProcess, postOpts...)

	s.panner = spatial.NewPanner(spatial.PannerConfig{
		Radius:       cfg.Radius,
		TimeConstant: cfg.Smoothing,
		SampleRate:   float64(cfg.SampleRate),
	}, cfg.Azimuth)

	s.pre = NewTap(cfg.TapSize)
	s.postTap = NewTap(cfg.TapSize)

	s.stages = map[string]audio.Stage{
		NodeWavelet:     s.wavelet,
		NodePostprocess: s.post,
		NodePanner:      s.panner,
	}

	s.topo, err = buildTopology(s.logger)
	if err != nil {
		return nil, err
	}

	s.params = params{
		threshold:      cfg.Threshold,
		azimuth:        cfg.Azimuth,
		waveletEnabled: cfg.WaveletEnabled,
	}
	s.view.Store(&blockView{position: s.panner.Position()})

	if s.metrics != nil {
		s.metrics.SetMode(false)
		s.metrics.Threshold.Set(cfg.Threshold)
		s.metrics.Azimuth.Set(float64(cfg.Azimuth))
	}
	s.setHealth(health.ComponentCapture, true, source.Name())
	s.setHealth(health.ComponentSuppressor, true, sup.Name()+" idle")
	s.setHealth(health.ComponentPipeline, true, string(ModeRaw))

	s.logger.Info("session created",
		"sample_rate", cfg.SampleRate,
		"block_size", cfg.BlockSize,
		"source", source.Name(),
		"sink", sink.Name(),
		"suppressor", sup.Name(),
	)
	return s, nil
}

func buildTopology(logger *slog.Logger) (*graph.Topology, error) {
	topo := graph.New(logger)

	nodes := []struct {
		name      string
		kind      graph.Kind
		exclusive bool
	}{
		{NodeSource, graph.KindSource, false},
		{NodeWavelet, graph.KindStage, true},
		{NodeSuppressor, graph.KindStage, true},
		{NodePostprocess, graph.KindStage, true},
		{NodePanner, graph.KindStage, true},
		{NodeSink, graph.KindSink, true},
		{NodeMonitorPre, graph.KindMonitor, true},
		{NodeMonitorPost, graph.KindMonitor, true},
	}
	for _, n := range nodes {
		if err := topo.AddNode(n.name, n.kind, n.exclusive); err != nil {
			return nil, err
		}
	}

	if err := topo.Connect(NodeSource, NodeMonitorPre); err != nil {
		return nil, err
	}
	if err := topo.Swap(string(ModeRaw), RawEdges()); err != nil {
		return nil, err
	}
	return topo, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Config returns the settings the session was built with
func (s *Session) Config() Config { return s.cfg }

// Topology exposes the routing graph for inspection
func (s *Session) Topology() *graph.Topology { return s.topo }

// PreTap returns the monitor before any processing
func (s *Session) PreTap() *Tap { return s.pre }

// PostTap returns the monitor on whatever feeds the sink
func (s *Session) PostTap() *Tap { return s.postTap }

// Mode returns the current routing mode
func (s *Session) Mode() Mode {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.mode
}

// Err returns the fault that stopped the session, if any
func (s *Session) Err() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.fault
}

// OnModeChange registers a callback run after every mode transition
func (s *Session) OnModeChange(fn func(mode, previous Mode)) {
	s.stateMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.stateMu.Unlock()
}

func (s *Session) setMode(mode Mode) (previous Mode, listeners []func(mode, previous Mode)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	previous = s.mode
	s.mode = mode
	return previous, append([]func(mode, previous Mode){}, s.listeners...)
}

func (s *Session) setHealth(component string, healthy bool, msg string) {
	if s.health != nil {
		s.health.SetComponent(component, healthy, msg)
	}
}

// Enable brings up the suppressor and swaps in the processed path. It does
// nothing when processing is already on. On failure the session stays raw,
// no edge changes, and the error wraps ErrEnableFailed.
func (s *Session) Enable(ctx context.Context) error {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()

	if err := s.usable(); err != nil {
		return fmt.Errorf("%w: %w", ErrEnableFailed, err)
	}
	if s.Mode() == ModeProcessing {
		return nil
	}

	// Started before blockMu so audio never waits on the collaborator
	sup, err := s.suppressor.Start(ctx, suppressor.Track{
		ID:         s.id,
		SampleRate: s.cfg.SampleRate,
		BlockSize:  s.cfg.BlockSize,
	})
	if err != nil {
		return s.enableFailed(fmt.Errorf("start %s: %w", s.suppressor.Name(), err))
	}

	s.blockMu.Lock()
	if err := s.topo.Swap(string(ModeProcessing), ProcessedEdges()); err != nil {
		s.blockMu.Unlock()
		sup.Stop()
		return s.enableFailed(err)
	}
	s.supSession = sup
	s.stages[NodeSuppressor] = suppressor.Stage{Session: sup}
	s.postFrom = NodePanner
	s.post.Reset()
	s.panner.Reset()
	previous, listeners := s.setMode(ModeProcessing)
	s.blockMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordTransition(string(ModeProcessing), true)
	}
	s.setHealth(health.ComponentSuppressor, true, s.suppressor.Name()+" running")
	s.setHealth(health.ComponentPipeline, true, string(ModeProcessing))
	s.logger.Info("processing enabled", "suppressor", s.suppressor.Name())

	for _, fn := range listeners {
		fn(ModeProcessing, previous)
	}
	return nil
}

func (s *Session) enableFailed(err error) error {
	if s.metrics != nil {
		s.metrics.EnableFailures.Inc()
	}
	s.setHealth(health.ComponentSuppressor, false, err.Error())
	s.logger.Warn("failed to enable processing, staying raw", "error", err)
	return fmt.Errorf("%w: %w", ErrEnableFailed, err)
}

// Disable swaps back to the raw path and releases the suppressor. It does
// nothing when already raw.
func (s *Session) Disable(ctx context.Context) error {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.disableLocked()
}

// disableLocked must be called with modeMu held
func (s *Session) disableLocked() error {
	if s.Mode() == ModeRaw {
		return nil
	}

	s.blockMu.Lock()
	if err := s.topo.Swap(string(ModeRaw), RawEdges()); err != nil {
		s.blockMu.Unlock()
		return err
	}
	sup := s.supSession
	s.supSession = nil
	delete(s.stages, NodeSuppressor)
	s.postFrom = NodeSource
	previous, listeners := s.setMode(ModeRaw)
	s.blockMu.Unlock()

	if sup != nil {
		if err := sup.Stop(); err != nil {
			s.logger.Warn("suppressor stop failed", "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(ModeRaw), false)
	}
	s.setHealth(health.ComponentSuppressor, true, s.suppressor.Name()+" idle")
	if s.Err() == nil {
		s.setHealth(health.ComponentPipeline, true, string(ModeRaw))
	}
	s.logger.Info("processing disabled")

	for _, fn := range listeners {
		fn(ModeRaw, previous)
	}
	return nil
}

func (s *Session) usable() error {
	if err := s.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	s.blockMu.Lock()
	closed := s.closed
	s.blockMu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return nil
}

// SetThreshold queues a new wavelet threshold for the next block
func (s *Session) SetThreshold(t float64) error {
	if err := wavelet.ValidateThreshold(t); err != nil {
		return err
	}
	if err := s.enqueue(update{kind: updateThreshold, threshold: t}); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.params.threshold = t
	s.stateMu.Unlock()

	if s.metrics != nil {
		s.metrics.Threshold.Set(t)
	}
	return nil
}

// SetAzimuth validates deg, snaps it to the angle step and queues it for the
// next block. It returns the snapped azimuth.
func (s *Session) SetAzimuth(deg int) (int, error) {
	if err := spatial.ValidateAzimuth(deg); err != nil {
		return 0, err
	}
	return s.setAzimuth(spatial.Snap(float64(deg), s.cfg.AngleStep))
}

// SetAzimuthAngle snaps a free drag angle in degrees and queues it
func (s *Session) SetAzimuthAngle(angle float64) (int, error) {
	return s.setAzimuth(spatial.Snap(angle, s.cfg.AngleStep))
}

func (s *Session) setAzimuth(deg int) (int, error) {
	if err := s.enqueue(update{kind: updateAzimuth, azimuth: deg}); err != nil {
		return 0, err
	}

	s.stateMu.Lock()
	s.params.azimuth = deg
	s.stateMu.Unlock()

	if s.metrics != nil {
		s.metrics.Azimuth.Set(float64(deg))
	}
	return deg, nil
}

// SetWaveletEnabled toggles wavelet shrinkage from the next block
func (s *Session) SetWaveletEnabled(enabled bool) error {
	if err := s.enqueue(update{kind: updateWavelet, enabled: enabled}); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.params.waveletEnabled = enabled
	s.stateMu.Unlock()
	return nil
}

func (s *Session) enqueue(u update) error {
	select {
	case s.updates <- u:
		return nil
	default:
		return ErrUpdateQueueFull
	}
}

// applyUpdates drains queued updates, keeping the latest of each kind.
// Called with blockMu held.
func (s *Session) applyUpdates() {
	var (
		latest  [3]*update
		pending bool
	)
	for {
		select {
		case u := <-s.updates:
			latest[u.kind] = &u
			pending = true
			s.updated.Add(1)
			continue
		default:
		}
		break
	}
	if !pending {
		return
	}

	if u := latest[updateThreshold]; u != nil {
		// Validated by SetThreshold
		s.wavelet.SetThreshold(u.threshold)
	}
	if u := latest[updateWavelet]; u != nil {
		s.wavelet.SetEnabled(u.enabled)
	}
	if u := latest[updateAzimuth]; u != nil {
		s.panner.SetAzimuth(u.azimuth)
	}
}

// ProcessBlock runs one captured block through the active path and returns
// what goes to the sink. The input frame may be reused by the stages.
func (s *Session) ProcessBlock(in audio.Frame) (out audio.Frame, err error) {
	s.blockMu.Lock()
	defer s.blockMu.Unlock()

	if s.closed {
		return audio.Frame{}, ErrSessionClosed
	}
	if !in.IsMono() {
		return audio.Frame{}, fmt.Errorf("%w: %w", ErrBlockFault, audio.ErrNotMono)
	}

	start := time.Now()
	s.applyUpdates()

	mode := s.Mode()
	out, err = s.runChain(in)
	if err != nil {
		s.faults.Add(1)
		if s.metrics != nil {
			s.metrics.BlockFaults.Inc()
		}
		return audio.Frame{}, err
	}

	s.blocks.Add(1)
	s.view.Store(&blockView{position: s.panner.Position(), post: s.post.Stats()})

	elapsed := time.Since(start)
	if budget := s.cfg.BlockDuration(); budget > 0 && elapsed > budget {
		s.overruns.Add(1)
		if s.metrics != nil {
			s.metrics.DeadlineOverruns.Inc()
		}
		s.logger.Debug("block deadline overrun", "elapsed", elapsed, "budget", budget)
	}

	if s.metrics != nil {
		s.metrics.BlocksProcessed.WithLabelValues(string(mode)).Inc()
		s.metrics.BlockDuration.Observe(elapsed.Seconds())
		if mode == ModeProcessing {
			if s.post.PreviousWasSpeech() {
				s.metrics.SpeechBlocks.Inc()
			} else {
				s.metrics.ComfortNoise.Inc()
			}
		}
	}
	return out, nil
}

// runChain walks the active path from source to sink. Called with blockMu
// held.
func (s *Session) runChain(in audio.Frame) (out audio.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrBlockFault, r)
		}
	}()

	chain, err := s.topo.Chain(NodeSource, NodeSink)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("%w: %w", ErrBlockFault, err)
	}

	s.pre.Write(in)
	if s.postFrom == NodeSource {
		s.postTap.Write(in)
	}

	cur := in
	if len(chain) > 2 {
		cur = in.Clone()
	}
	for _, name := range chain[1 : len(chain)-1] {
		stage, ok := s.stages[name]
		if !ok {
			return audio.Frame{}, fmt.Errorf("%w: no stage for node %s", ErrBlockFault, name)
		}
		cur, err = stage.Process(cur)
		if err != nil {
			return audio.Frame{}, fmt.Errorf("%w: %s: %w", ErrBlockFault, name, err)
		}
		if name == s.postFrom {
			s.postTap.Write(cur)
		}
	}
	return cur, nil
}

// Run reads, processes and writes blocks until ctx is done, the source
// fails or a block faults. Blocks are never retried. A fault releases the
// suppressor and leaves the session failed.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("session running", "block_duration", s.cfg.BlockDuration())
	defer s.logger.Info("session stopped", "blocks", s.blocks.Load())

	for {
		in, err := s.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.setHealth(health.ComponentCapture, false, capture.UserMessage(err))
			s.fail(err)
			return fmt.Errorf("capture: %w", err)
		}

		out, err := s.ProcessBlock(in)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil
			}
			s.fail(err)
			return err
		}

		if err := s.sink.Write(out); err != nil {
			err = fmt.Errorf("%w: sink: %w", ErrBlockFault, err)
			s.faults.Add(1)
			if s.metrics != nil {
				s.metrics.BlockFaults.Inc()
			}
			s.fail(err)
			return err
		}
	}
}

// fail records a fatal error and releases the suppressor
func (s *Session) fail(err error) {
	s.stateMu.Lock()
	if s.fault == nil {
		s.fault = err
	}
	s.stateMu.Unlock()

	s.setHealth(health.ComponentPipeline, false, err.Error())
	s.logger.Error("session failed", "error", err)

	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	if err := s.disableLocked(); err != nil {
		s.logger.Warn("failed to release suppressor", "error", err)
	}
}

// Close waits for the current block, swaps back to raw, stops the
// suppressor and closes the source and sink. It is safe to call more than
// once.
func (s *Session) Close() error {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()

	var errs []error
	if err := s.disableLocked(); err != nil {
		errs = append(errs, err)
	}

	s.blockMu.Lock()
	if s.closed {
		s.blockMu.Unlock()
		return nil
	}
	s.closed = true
	sup := s.supSession
	s.supSession = nil
	s.blockMu.Unlock()

	if sup != nil {
		errs = append(errs, sup.Stop())
	}
	errs = append(errs, s.source.Close(), s.sink.Close())

	s.setHealth(health.ComponentPipeline, false, "closed")
	s.logger.Info("session closed")
	return errors.Join(errs...)
}

// Stats contains session counters
type Stats struct {
	Blocks      uint64            `json:"blocks"`
	Faults      uint64            `json:"faults"`
	Overruns    uint64            `json:"overruns"`
	Updates     uint64            `json:"updates"`
	PostProcess postprocess.Stats `json:"postprocess"`
}

// State is a snapshot for the control surface
type State struct {
	ID             string           `json:"id"`
	Mode           Mode             `json:"mode"`
	Threshold      float64          `json:"threshold"`
	WaveletEnabled bool             `json:"wavelet_enabled"`
	Azimuth        int              `json:"azimuth"`
	Position       spatial.Position `json:"position"`
	Target         spatial.Position `json:"target"`
	Suppressor     string           `json:"suppressor"`
	Error          string           `json:"error,omitempty"`
	Stats          Stats            `json:"stats"`
}

// State returns a snapshot without waiting for the current block
func (s *Session) State() State {
	s.stateMu.RLock()
	p := s.params
	mode := s.mode
	fault := s.fault
	s.stateMu.RUnlock()

	view := s.view.Load()
	st := State{
		ID:             s.id,
		Mode:           mode,
		Threshold:      p.threshold,
		WaveletEnabled: p.waveletEnabled,
		Azimuth:        p.azimuth,
		Position:       view.position,
		Target:         spatial.PositionFor(p.azimuth, s.cfg.Radius),
		Suppressor:     s.suppressor.Name(),
		Stats: Stats{
			Blocks:      s.blocks.Load(),
			Faults:      s.faults.Load(),
			Overruns:    s.overruns.Load(),
			Updates:     s.updated.Load(),
			PostProcess: view.post,
		},
	}
	if fault != nil {
		st.Error = fault.Error()
	}
	return st
}

// Levels returns the current pre and post tap levels
func (s *Session) Levels() (pre, post Level) {
	return s.pre.Level(), s.postTap.Level()
}
