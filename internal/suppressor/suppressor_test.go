package suppressor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-hush/internal/audio"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"", KindBypass},
		{KindBypass, KindBypass},
		{KindSpectral, KindSpectral},
		{KindRemote, KindRemote},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Kind = tt.kind
		s, err := New(cfg, nil)
		require.NoError(t, err, tt.kind)
		assert.Equal(t, tt.want, s.Name())
	}

	cfg := DefaultConfig()
	cfg.Kind = "rnnoise"
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestBypass(t *testing.T) {
	sess, err := Bypass{}.Start(context.Background(), Track{SampleRate: 48000, BlockSize: 4})
	require.NoError(t, err)

	in := audio.Mono([]float32{0.1, -0.2, 0.3, -0.4})
	out, err := sess.Process(in)
	require.NoError(t, err)
	assert.Equal(t, in.Samples, out.Samples)

	require.NoError(t, sess.Stop())
	require.NoError(t, sess.Stop(), "Stop is idempotent")

	_, err = sess.Process(in)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestBypass_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Bypass{}.Start(ctx, Track{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStage(t *testing.T) {
	sess, err := Bypass{}.Start(context.Background(), Track{})
	require.NoError(t, err)

	stage := Stage{Session: sess}
	assert.Equal(t, "suppressor", stage.Name())

	out, err := stage.Process(audio.Mono([]float32{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, out.Samples)

	_, err = stage.Process(audio.Frame{Samples: []float32{1, 2}, Channels: 2})
	assert.ErrorIs(t, err, audio.ErrNotMono)

	_, err = Stage{}.Process(audio.Mono([]float32{1}))
	assert.ErrorIs(t, err, ErrNotStarted)
}
