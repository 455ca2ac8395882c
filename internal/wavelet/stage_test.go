package wavelet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-hush/internal/audio"
)

func TestNewStage(t *testing.T) {
	s, err := NewStage(128, DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, "wavelet", s.Name())
	assert.Equal(t, DefaultThreshold, s.Threshold())
	assert.True(t, s.Enabled())

	_, err = NewStage(128, -1)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestStage_SetThreshold(t *testing.T) {
	s, err := NewStage(128, 0)
	require.NoError(t, err)

	require.NoError(t, s.SetThreshold(0.3))
	assert.Equal(t, 0.3, s.Threshold())

	for _, bad := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, s.SetThreshold(bad), ErrInvalidThreshold)
	}
	assert.Equal(t, 0.3, s.Threshold(), "rejected values must not be applied")
}

func TestStage_Process(t *testing.T) {
	s, err := NewStage(8, 0.5)
	require.NoError(t, err)

	in := []float32{0.1, -0.2, 0.9, 0.1, 0, 0.3, -0.4, 0.2}
	want := Denoise(in, 0.5)

	out, err := s.Process(audio.Mono(append([]float32(nil), in...)))
	require.NoError(t, err)
	assert.Equal(t, want, out.Samples)
	assert.Equal(t, 1, out.Channels)
}

func TestStage_Disabled(t *testing.T) {
	s, err := NewStage(4, 10)
	require.NoError(t, err)
	s.SetEnabled(false)

	in := []float32{1, -1, 1, -1}
	out, err := s.Process(audio.Mono(append([]float32(nil), in...)))
	require.NoError(t, err)
	assert.Equal(t, in, out.Samples)
}

func TestStage_RejectsStereo(t *testing.T) {
	s, err := NewStage(4, 0)
	require.NoError(t, err)

	_, err = s.Process(audio.Frame{Samples: make([]float32, 8), Channels: 2})
	assert.ErrorIs(t, err, audio.ErrNotMono)
}
