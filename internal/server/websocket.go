package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-hush/internal/protocol"
	"github.com/teslashibe/go-hush/internal/session"
)

// DefaultBroadcastHz is the state and levels push rate
const DefaultBroadcastHz = 10

// WSHub manages control channel connections. It applies client commands to
// the session and pushes state, levels and mode transitions.
type WSHub struct {
	sess     *session.Session
	ctl      control
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	// Serializes writes; a conn allows one writer at a time
	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(sess *session.Session, hz int, logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = slog.Default()
	}
	if hz <= 0 {
		hz = DefaultBroadcastHz
	}

	h := &WSHub{
		sess:     sess,
		ctl:      control{sess: sess},
		interval: time.Second / time.Duration(hz),
		logger:   logger,
		clients:  make(map[*websocket.Conn]struct{}),
		done:     make(chan struct{}),
	}

	if sess != nil {
		sess.OnModeChange(h.announceMode)
	}
	return h
}

// Run starts the broadcast loop
func (h *WSHub) Run(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("websocket hub started", "interval", h.interval)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopped")
			return
		case <-ticker.C:
			if h.sess == nil || h.ClientCount() == 0 {
				continue
			}

			if msg, err := protocol.NewMessage(protocol.TypeState, h.sess.State()); err == nil {
				h.broadcast(msg)
			}

			pre, post := h.sess.Levels()
			msg, err := protocol.NewLevelsMessage(
				protocol.LevelData{RMS: pre.RMS, Peak: pre.Peak},
				protocol.LevelData{RMS: post.RMS, Peak: post.Peak},
			)
			if err == nil {
				h.broadcast(msg)
			}
		}
	}
}

// announceMode pushes a transition as soon as it happens
func (h *WSHub) announceMode(mode, previous session.Mode) {
	msg, err := protocol.NewModeMessage(string(mode), string(previous))
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}
	h.broadcast(msg)

	h.logger.Debug("mode change broadcast",
		"mode", mode,
		"previous", previous,
	)
}

func (h *WSHub) broadcast(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := h.write(conn, data); err != nil {
			// Will be cleaned up when connection closes
			h.logger.Debug("websocket write error", "error", err)
		}
	}
}

func (h *WSHub) write(conn *websocket.Conn, data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// UpgradeHandler returns the WebSocket upgrade handler
func (h *WSHub) UpgradeHandler() fiber.Handler {
	// Middleware to check if request is a WebSocket upgrade
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return websocket.New(h.handleConnection)(c)
		}

		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error":   "WebSocket upgrade required",
			"message": "Connect via WebSocket to control the pipeline",
		})
	}
}

func (h *WSHub) handleConnection(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		"remote_addr", c.RemoteAddr().String(),
		"clients", clientCount,
	)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		clientCount := len(h.clients)
		h.mu.Unlock()

		h.logger.Info("websocket client disconnected",
			"remote_addr", c.RemoteAddr().String(),
			"clients", clientCount,
		)
	}()

	// Greet with the current state so clients can render immediately
	if h.sess != nil {
		if msg, err := protocol.NewMessage(protocol.TypeState, h.sess.State()); err == nil {
			h.reply(c, msg)
		}
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			// Connection closed
			break
		}

		h.handleCommand(c, data)
	}
}

func (h *WSHub) handleCommand(c *websocket.Conn, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.replyError(c, "", err)
		return
	}

	reply, err := h.ctl.dispatch(context.Background(), msg)
	if err != nil {
		h.logger.Debug("websocket command rejected",
			"type", msg.Type,
			"error", err,
		)
		h.replyError(c, msg.Type, err)
		return
	}
	h.reply(c, reply)
}

func (h *WSHub) reply(c *websocket.Conn, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	if err := h.write(c, data); err != nil {
		h.logger.Debug("websocket write error", "error", err)
	}
}

func (h *WSHub) replyError(c *websocket.Conn, command protocol.MessageType, err error) {
	msg, merr := protocol.NewErrorMessage(command, err)
	if merr != nil {
		return
	}
	h.reply(c, msg)
}

// ClientCount returns the number of connected WebSocket clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close shuts down the WebSocket hub
func (h *WSHub) Close() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}

	// Close all client connections
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
}
