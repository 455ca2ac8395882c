package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-hush/internal/audio"
	"github.com/teslashibe/go-hush/internal/capture"
	"github.com/teslashibe/go-hush/internal/config"
	"github.com/teslashibe/go-hush/internal/health"
	"github.com/teslashibe/go-hush/internal/metrics"
	"github.com/teslashibe/go-hush/internal/protocol"
	"github.com/teslashibe/go-hush/internal/session"
	"github.com/teslashibe/go-hush/internal/suppressor"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:            9000,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		GracefulTimeout: 5 * time.Second,
		BroadcastHz:     10,
	}
}

func setupTestServer(t *testing.T, sup suppressor.Suppressor) (*Server, *session.Session) {
	t.Helper()

	logger := slog.Default()
	checker := health.NewChecker("test")
	m := metrics.New()

	capCfg := capture.DefaultConfig()
	capCfg.Realtime = false
	source := capture.NewGenerator(capCfg)

	sess, err := session.New(session.DefaultConfig(), source, capture.NewDiscard(), sup,
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithHealth(checker),
	)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	server := New(testServerConfig(), sess, checker, m, logger, "test")
	return server, sess
}

func doJSON(t *testing.T, server *Server, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	var result map[string]interface{}
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &result); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
	}
	return resp, result
}

func TestServer_Health(t *testing.T) {
	server, _ := setupTestServer(t, suppressor.Bypass{})

	resp, result := doJSON(t, server, "GET", "/health", "")

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	if result["version"] != "test" {
		t.Errorf("expected version 'test', got %v", result["version"])
	}

	if result["status"] != health.StatusOK {
		t.Errorf("expected status ok, got %v", result["status"])
	}

	if _, ok := result["uptime_seconds"]; !ok {
		t.Error("expected uptime_seconds in response")
	}

	if resp.Header.Get(HeaderRequestID) == "" {
		t.Error("expected a request ID header")
	}
}

func TestServer_HealthUnhealthyAfterClose(t *testing.T) {
	server, sess := setupTestServer(t, suppressor.Bypass{})
	sess.Close()

	resp, result := doJSON(t, server, "GET", "/health", "")

	if resp.StatusCode != 503 {
		t.Errorf("expected status 503, got %d", resp.StatusCode)
	}
	if result["status"] != health.StatusUnhealthy {
		t.Errorf("expected unhealthy, got %v", result["status"])
	}
}

func TestServer_State(t *testing.T) {
	server, sess := setupTestServer(t, suppressor.Bypass{})

	resp, result := doJSON(t, server, "GET", "/api/state", "")

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	if result["id"] != sess.ID() {
		t.Errorf("expected id %s, got %v", sess.ID(), result["id"])
	}

	if result["mode"] != string(session.ModeRaw) {
		t.Errorf("expected raw mode, got %v", result["mode"])
	}

	if result["threshold"].(float64) != 0.1 {
		t.Errorf("expected threshold 0.1, got %v", result["threshold"])
	}
}

func TestServer_Processing(t *testing.T) {
	server, sess := setupTestServer(t, suppressor.Bypass{})

	resp, result := doJSON(t, server, "POST", "/api/processing", `{"enabled":true}`)
	if resp.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d (%v)", resp.StatusCode, result)
	}
	if result["mode"] != string(session.ModeProcessing) {
		t.Errorf("expected processing mode, got %v", result["mode"])
	}
	if sess.Mode() != session.ModeProcessing {
		t.Error("session should be processing")
	}

	resp, result = doJSON(t, server, "POST", "/api/processing", `{"enabled":false}`)
	if resp.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if result["mode"] != string(session.ModeRaw) {
		t.Errorf("expected raw mode, got %v", result["mode"])
	}
}

func TestServer_ProcessingEnableFailed(t *testing.T) {
	remote := suppressor.NewRemote(suppressor.RemoteConfig{
		URL:          "ws://127.0.0.1:1/suppress",
		DialTimeout:  200 * time.Millisecond,
		WriteTimeout: time.Second,
		QueueSize:    4,
		MaxBuffered:  4,
	}, nil)
	server, sess := setupTestServer(t, remote)

	resp, result := doJSON(t, server, "POST", "/api/processing", `{"enabled":true}`)

	if resp.StatusCode != 502 {
		t.Errorf("expected status 502, got %d", resp.StatusCode)
	}
	if _, ok := result["error"]; !ok {
		t.Error("expected error in response")
	}
	if sess.Mode() != session.ModeRaw {
		t.Error("session should stay raw")
	}
}

func TestServer_Threshold(t *testing.T) {
	server, sess := setupTestServer(t, suppressor.Bypass{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"threshold":0.3}`, 200},
		{"zero", `{"threshold":0}`, 200},
		{"negative", `{"threshold":-1}`, 400},
		{"malformed", `{"threshold":`, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, server, "PUT", "/api/threshold", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}

	if got := sess.State().Threshold; got != 0 {
		t.Errorf("expected last valid threshold 0, got %f", got)
	}
}

func TestServer_Azimuth(t *testing.T) {
	server, _ := setupTestServer(t, suppressor.Bypass{})

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantAzimuth float64
	}{
		{"exact step", `{"azimuth":90}`, 200, 90},
		{"snapped down", `{"azimuth":97}`, 200, 90},
		{"snapped up", `{"azimuth":353}`, 200, 0},
		{"drag angle", `{"angle":-10}`, 200, 345},
		{"out of range", `{"azimuth":360}`, 400, 0},
		{"negative", `{"azimuth":-15}`, 400, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, result := doJSON(t, server, "PUT", "/api/azimuth", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus == 200 && result["azimuth"].(float64) != tt.wantAzimuth {
				t.Errorf("expected azimuth %v, got %v", tt.wantAzimuth, result["azimuth"])
			}
		})
	}
}

func TestServer_Wavelet(t *testing.T) {
	server, sess := setupTestServer(t, suppressor.Bypass{})

	resp, result := doJSON(t, server, "PUT", "/api/wavelet", `{"enabled":false}`)
	if resp.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if result["wavelet_enabled"] != false {
		t.Errorf("expected wavelet_enabled false, got %v", result["wavelet_enabled"])
	}
	if sess.State().WaveletEnabled {
		t.Error("session should report wavelet disabled")
	}
}

func TestServer_Topology(t *testing.T) {
	server, _ := setupTestServer(t, suppressor.Bypass{})

	_, result := doJSON(t, server, "GET", "/api/topology", "")
	if result["active"] != string(session.ModeRaw) {
		t.Errorf("expected raw subgraph, got %v", result["active"])
	}
	chain := result["chain"].([]interface{})
	if len(chain) != 2 || chain[0] != session.NodeSource || chain[1] != session.NodeSink {
		t.Errorf("unexpected raw chain %v", chain)
	}

	doJSON(t, server, "POST", "/api/processing", `{"enabled":true}`)

	_, result = doJSON(t, server, "GET", "/api/topology", "")
	if result["active"] != string(session.ModeProcessing) {
		t.Errorf("expected processing subgraph, got %v", result["active"])
	}
	chain = result["chain"].([]interface{})
	if len(chain) < 4 || chain[1] != session.NodeWavelet {
		t.Errorf("unexpected processed chain %v", chain)
	}
}

func TestServer_Taps(t *testing.T) {
	server, sess := setupTestServer(t, suppressor.Bypass{})

	block := make([]float32, sess.Config().BlockSize)
	for i := range block {
		block[i] = 0.5
	}
	frame := audio.Mono(block)
	if _, err := sess.ProcessBlock(frame); err != nil {
		t.Fatalf("ProcessBlock() error = %v", err)
	}

	_, result := doJSON(t, server, "GET", "/api/taps", "")
	pre := result["pre"].(map[string]interface{})
	level := pre["level"].(map[string]interface{})
	if level["peak"].(float64) < 0.49 {
		t.Errorf("expected pre peak near 0.5, got %v", level["peak"])
	}
	if _, ok := pre["samples"]; !ok {
		t.Error("expected samples in pre tap")
	}

	_, result = doJSON(t, server, "GET", "/api/taps?samples=false", "")
	pre = result["pre"].(map[string]interface{})
	if _, ok := pre["samples"]; ok {
		t.Error("samples should be omitted")
	}
}

func TestServer_Metrics(t *testing.T) {
	server, sess := setupTestServer(t, suppressor.Bypass{})

	frame := audio.Mono(make([]float32, sess.Config().BlockSize))
	sess.ProcessBlock(frame)

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	expectedMetrics := []string{
		"gohush_blocks_processed_total",
		"gohush_processing_enabled",
		"gohush_wavelet_threshold",
		"gohush_websocket_clients",
	}

	for _, metric := range expectedMetrics {
		if !bytes.Contains(body, []byte(metric)) {
			t.Errorf("expected metric %s in response", metric)
		}
	}
}

func TestServer_NoSession(t *testing.T) {
	server := New(testServerConfig(), nil, nil, nil, nil, "test")

	paths := []string{"/api/state", "/api/topology", "/api/taps", "/metrics"}
	for _, path := range paths {
		resp, _ := doJSON(t, server, "GET", path, "")
		if resp.StatusCode != 503 {
			t.Errorf("%s: expected status 503, got %d", path, resp.StatusCode)
		}
	}

	resp, _ := doJSON(t, server, "PUT", "/api/threshold", `{"threshold":0.2}`)
	if resp.StatusCode != 503 {
		t.Errorf("expected status 503, got %d", resp.StatusCode)
	}
}

func TestServer_Config(t *testing.T) {
	server, _ := setupTestServer(t, suppressor.Bypass{})

	_, result := doJSON(t, server, "GET", "/api/config", "")

	serverCfg := result["server"].(map[string]interface{})
	if serverCfg["port"].(float64) != 9000 {
		t.Errorf("expected port 9000, got %v", serverCfg["port"])
	}

	pipeline := result["pipeline"].(map[string]interface{})
	if pipeline["block_size"].(float64) != 128 {
		t.Errorf("expected block_size 128, got %v", pipeline["block_size"])
	}
}

func TestServer_Control_UpgradeRequired(t *testing.T) {
	server, _ := setupTestServer(t, suppressor.Bypass{})

	// Non-WebSocket request should get 426
	req := httptest.NewRequest("GET", "/api/control", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 426 {
		t.Errorf("expected status 426, got %d", resp.StatusCode)
	}
}

func TestServer_ControlChannel(t *testing.T) {
	server, sess := setupTestServer(t, suppressor.Bypass{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go server.app.Listener(ln)
	defer server.app.Shutdown()

	url := "ws://" + ln.Addr().String() + "/api/control"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// First message is the current state
	greeting := readMessage(t, conn)
	if greeting.Type != protocol.TypeState {
		t.Fatalf("expected state greeting, got %s", greeting.Type)
	}

	send(t, conn, `{"type":"set_threshold","data":{"threshold":0.4}}`)
	reply := readUntil(t, conn, protocol.TypeState)
	var state session.State
	if err := reply.ParseData(&state); err != nil {
		t.Fatalf("parse state: %v", err)
	}
	if state.Threshold != 0.4 {
		t.Errorf("expected threshold 0.4, got %f", state.Threshold)
	}

	send(t, conn, `{"type":"set_azimuth","data":{"azimuth":400}}`)
	errMsg := readUntil(t, conn, protocol.TypeError)
	var errData protocol.ErrorData
	errMsg.ParseData(&errData)
	if errData.Command != protocol.TypeSetAzimuth {
		t.Errorf("expected error for set_azimuth, got %q", errData.Command)
	}

	send(t, conn, `{"type":"set_processing","data":{"enabled":true}}`)
	modeMsg := readUntil(t, conn, protocol.TypeMode)
	var mode protocol.ModeData
	modeMsg.ParseData(&mode)
	if mode.Mode != string(session.ModeProcessing) || mode.Previous != string(session.ModeRaw) {
		t.Errorf("unexpected mode message %+v", mode)
	}
	if sess.Mode() != session.ModeProcessing {
		t.Error("session should be processing")
	}

	send(t, conn, `{"type":"ping"}`)
	readUntil(t, conn, protocol.TypePong)

	send(t, conn, `{"type":"reboot"}`)
	readUntil(t, conn, protocol.TypeError)

	if server.WSHub().ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", server.WSHub().ClientCount())
	}
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return msg
}

// readUntil skips broadcasts until a message of the wanted type arrives
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) *protocol.Message {
	t.Helper()
	for i := 0; i < 50; i++ {
		msg := readMessage(t, conn)
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message received", want)
	return nil
}
