package suppressor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-hush/internal/audio"
	"github.com/teslashibe/go-hush/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer answers every binary frame with the same samples scaled by gain.
// The hello payload is published on the returned channel.
func echoServer(t *testing.T, gain float32) (*httptest.Server, <-chan protocol.HelloData) {
	t.Helper()
	hellos := make(chan protocol.HelloData, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypeHello {
			return
		}
		hello, _ := msg.GetHello()
		hellos <- *hello

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			samples, err := protocol.DecodePCM(nil, data)
			if err != nil {
				return
			}
			for i := range samples {
				samples[i] *= gain
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, protocol.EncodePCM(samples)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, hellos
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func constBlock(n int, v float32) audio.Frame {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return audio.Mono(s)
}

func TestRemote_HelloAndEcho(t *testing.T) {
	server, hellos := echoServer(t, 0.5)

	r := NewRemote(RemoteConfig{URL: wsURL(server)}, nil)
	sess, err := r.Start(context.Background(), Track{ID: "s1", SampleRate: 48000, BlockSize: 128})
	require.NoError(t, err)
	defer sess.Stop()

	select {
	case hello := <-hellos:
		assert.Equal(t, "s1", hello.SessionID)
		assert.Equal(t, 48000, hello.SampleRate)
		assert.Equal(t, 128, hello.BlockSize)
		assert.Equal(t, protocol.PCMFormat, hello.Format)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for hello")
	}

	// Output is silent until processed samples come back, then carries them
	require.Eventually(t, func() bool {
		out, err := sess.Process(constBlock(128, 0.8))
		if err != nil || len(out.Samples) != 128 {
			return false
		}
		return out.Samples[127] == 0.4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRemote_PrimingIsSilent(t *testing.T) {
	server, _ := echoServer(t, 1)

	sess, err := NewRemote(RemoteConfig{URL: wsURL(server)}, nil).
		Start(context.Background(), Track{SampleRate: 48000, BlockSize: 64})
	require.NoError(t, err)
	defer sess.Stop()

	out, err := sess.Process(audio.Mono(make([]float32, 64)))
	require.NoError(t, err)
	assert.Len(t, out.Samples, 64)
	for _, v := range out.Samples {
		assert.Equal(t, float32(0), v)
	}
}

func TestRemote_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	r := NewRemote(RemoteConfig{URL: url, DialTimeout: 500 * time.Millisecond}, nil)
	_, err := r.Start(context.Background(), Track{SampleRate: 48000, BlockSize: 128})
	assert.Error(t, err)
}

func TestRemote_Disconnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
	defer server.Close()

	sess, err := NewRemote(RemoteConfig{URL: wsURL(server)}, nil).
		Start(context.Background(), Track{SampleRate: 48000, BlockSize: 128})
	require.NoError(t, err)
	defer sess.Stop()

	var lastErr error
	require.Eventually(t, func() bool {
		_, lastErr = sess.Process(constBlock(128, 0.1))
		return lastErr != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, lastErr, ErrDisconnected)
}

func TestRemote_StopIdempotent(t *testing.T) {
	server, _ := echoServer(t, 1)

	sess, err := NewRemote(RemoteConfig{URL: wsURL(server)}, nil).
		Start(context.Background(), Track{SampleRate: 48000, BlockSize: 128})
	require.NoError(t, err)

	require.NoError(t, sess.Stop())
	require.NoError(t, sess.Stop())

	_, err = sess.Process(constBlock(128, 0.1))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestDefaultRemoteConfig(t *testing.T) {
	cfg := DefaultRemoteConfig()
	assert.Positive(t, cfg.DialTimeout)
	assert.Positive(t, cfg.WriteTimeout)
	assert.Positive(t, cfg.QueueSize)
	assert.Positive(t, cfg.MaxBuffered)
}
