package suppressor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-hush/internal/audio"
	"github.com/teslashibe/go-hush/internal/protocol"
)

// ErrDisconnected is returned once the remote link has failed
var ErrDisconnected = errors.New("suppressor: remote disconnected")

// RemoteConfig configures the WebSocket suppressor client
type RemoteConfig struct {
	URL          string        // WebSocket URL (e.g., "ws://localhost:9100/suppress")
	DialTimeout  time.Duration // Handshake timeout
	WriteTimeout time.Duration // Per-frame write timeout
	QueueSize    int           // Outgoing frames buffered before dropping
	MaxBuffered  int           // Received blocks buffered before dropping the oldest
}

// DefaultRemoteConfig returns sensible defaults
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		URL:          "ws://localhost:9100/suppress",
		DialTimeout:  3 * time.Second,
		WriteTimeout: 1 * time.Second,
		QueueSize:    32,
		MaxBuffered:  16,
	}
}

// Remote streams blocks to an external suppressor over WebSocket.
//
// The stream opens with a hello text message describing the track. After
// that both directions carry binary frames of little-endian float32 samples.
// Output is zeros until the first processed samples come back.
type Remote struct {
	cfg    RemoteConfig
	logger *slog.Logger
}

// NewRemote creates a remote suppressor
func NewRemote(cfg RemoteConfig, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultRemoteConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = def.MaxBuffered
	}

	return &Remote{cfg: cfg, logger: logger}
}

// Name implements Suppressor
func (r *Remote) Name() string { return KindRemote }

// Start dials the remote end and sends the hello message
func (r *Remote) Start(ctx context.Context, track Track) (Session, error) {
	r.logger.Info("connecting to remote suppressor", "url", r.cfg.URL)

	dialer := websocket.Dialer{
		HandshakeTimeout: r.cfg.DialTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.DialTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, r.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	hello, err := protocol.NewHelloMessage(track.ID, track.SampleRate, track.BlockSize)
	if err != nil {
		conn.Close()
		return nil, err
	}
	data, err := hello.Bytes()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("marshal hello: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write hello: %w", err)
	}

	s := &remoteSession{
		cfg:        r.cfg,
		logger:     r.logger,
		conn:       conn,
		send:       make(chan []byte, r.cfg.QueueSize),
		done:       make(chan struct{}),
		maxSamples: r.cfg.MaxBuffered * max(track.BlockSize, 1),
	}

	s.wg.Add(2)
	go s.writeLoop()
	go s.readLoop()

	r.logger.Info("remote suppressor connected",
		"sample_rate", track.SampleRate,
		"block_size", track.BlockSize,
	)
	return s, nil
}

type remoteSession struct {
	cfg    RemoteConfig
	logger *slog.Logger
	conn   *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu         sync.Mutex
	fifo       []float32
	maxSamples int
	err        error
	stopped    bool

	// Stats
	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	framesDropped  atomic.Uint64
	underruns      atomic.Uint64
}

func (s *remoteSession) Process(in audio.Frame) (audio.Frame, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return audio.Frame{}, ErrNotStarted
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return audio.Frame{}, err
	}
	s.mu.Unlock()

	select {
	case s.send <- protocol.EncodePCM(in.Samples):
	default:
		s.framesDropped.Add(1)
	}

	out := make([]float32, len(in.Samples))

	s.mu.Lock()
	n := copy(out, s.fifo)
	s.fifo = s.fifo[:copy(s.fifo, s.fifo[n:])]
	s.mu.Unlock()

	if n < len(out) {
		s.underruns.Add(1)
	}
	return audio.Mono(out), nil
}

// writeLoop owns all data writes to the connection
func (s *remoteSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				s.fail(fmt.Errorf("%w: write: %v", ErrDisconnected, err))
				return
			}
			s.framesSent.Add(1)
		}
	}
}

// readLoop collects processed samples
func (s *remoteSession) readLoop() {
	defer s.wg.Done()

	var buf []float32
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("%w: read: %v", ErrDisconnected, err))
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			buf, err = protocol.DecodePCM(buf, data)
			if err != nil {
				s.logger.Debug("bad frame from remote suppressor", "error", err)
				continue
			}
			s.framesReceived.Add(1)

			s.mu.Lock()
			s.fifo = append(s.fifo, buf...)
			if over := len(s.fifo) - s.maxSamples; over > 0 {
				s.fifo = s.fifo[:copy(s.fifo, s.fifo[over:])]
			}
			s.mu.Unlock()

		case websocket.TextMessage:
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				s.logger.Debug("parse message error", "error", err)
				continue
			}
			s.logger.Debug("remote suppressor message", "type", msg.Type)
		}
	}
}

func (s *remoteSession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.err != nil {
		return
	}
	s.err = err
	s.logger.Warn("remote suppressor link failed", "error", err)
}

func (s *remoteSession) Stop() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.cfg.WriteTimeout))
		s.conn.Close()
		s.wg.Wait()

		s.logger.Info("remote suppressor stopped",
			"frames_sent", s.framesSent.Load(),
			"frames_received", s.framesReceived.Load(),
			"frames_dropped", s.framesDropped.Load(),
			"underruns", s.underruns.Load(),
		)
	})
	return nil
}
