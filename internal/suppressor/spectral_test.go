package suppressor

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-hush/internal/audio"
)

func noiseBlock(rng *rand.Rand, n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32((rng.Float64()*2 - 1) * amp)
	}
	return out
}

func startSpectral(t *testing.T, cfg SpectralConfig) Session {
	t.Helper()
	sess, err := NewSpectral(cfg, nil).Start(context.Background(), Track{SampleRate: 48000, BlockSize: 128})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Stop() })
	return sess
}

func TestSpectral_PassesThroughWhileLearning(t *testing.T) {
	sess := startSpectral(t, SpectralConfig{LearnBlocks: 3, Floor: 0.05})
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 3; i++ {
		in := audio.Mono(noiseBlock(rng, 128, 0.1))
		out, err := sess.Process(in)
		require.NoError(t, err)
		assert.Equal(t, in.Samples, out.Samples)
	}
}

func TestSpectral_UnityFloorIsIdentity(t *testing.T) {
	sess := startSpectral(t, SpectralConfig{LearnBlocks: 0, Floor: 1})
	rng := rand.New(rand.NewPCG(3, 4))

	in := noiseBlock(rng, 128, 0.5)
	out, err := sess.Process(audio.Mono(in))
	require.NoError(t, err)
	require.Len(t, out.Samples, 128)
	for i := range in {
		assert.InDelta(t, in[i], out.Samples[i], 1e-5)
	}
}

func TestSpectral_ReducesStationaryNoise(t *testing.T) {
	sess := startSpectral(t, SpectralConfig{LearnBlocks: 20, Floor: 0.05, Strength: 2})
	rng := rand.New(rand.NewPCG(5, 6))

	for i := 0; i < 20; i++ {
		_, err := sess.Process(audio.Mono(noiseBlock(rng, 128, 0.05)))
		require.NoError(t, err)
	}

	var inEnergy, outEnergy float64
	for i := 0; i < 20; i++ {
		in := noiseBlock(rng, 128, 0.05)
		out, err := sess.Process(audio.Mono(in))
		require.NoError(t, err)
		inEnergy += audio.RMS(in)
		outEnergy += audio.RMS(out.Samples)
	}
	assert.Less(t, outEnergy, inEnergy*0.6)
}

func TestSpectral_KeepsToneAboveNoise(t *testing.T) {
	sess := startSpectral(t, SpectralConfig{LearnBlocks: 10, Floor: 0.05})
	rng := rand.New(rand.NewPCG(7, 8))

	for i := 0; i < 10; i++ {
		_, err := sess.Process(audio.Mono(noiseBlock(rng, 128, 0.01)))
		require.NoError(t, err)
	}

	tone := make([]float32, 128)
	for i := range tone {
		tone[i] = float32(0.5 * math.Sin(2*math.Pi*float64(i)/16))
	}
	out, err := sess.Process(audio.Mono(tone))
	require.NoError(t, err)
	assert.InDelta(t, audio.RMS(tone), audio.RMS(out.Samples), audio.RMS(tone)*0.1)
}

func TestSpectral_BlockSizeChange(t *testing.T) {
	sess := startSpectral(t, SpectralConfig{LearnBlocks: 1, Floor: 1})

	out, err := sess.Process(audio.Mono(make([]float32, 64)))
	require.NoError(t, err)
	assert.Len(t, out.Samples, 64)

	out, err = sess.Process(audio.Mono(make([]float32, 256)))
	require.NoError(t, err)
	assert.Len(t, out.Samples, 256)
}

func TestSpectral_Stop(t *testing.T) {
	sess := startSpectral(t, SpectralConfig{})
	require.NoError(t, sess.Stop())
	require.NoError(t, sess.Stop())

	_, err := sess.Process(audio.Mono(make([]float32, 128)))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestNewSpectral_Sanitizes(t *testing.T) {
	s := NewSpectral(SpectralConfig{LearnBlocks: -1, Floor: 2, Strength: -1}, nil)
	assert.Equal(t, 0, s.cfg.LearnBlocks)
	assert.Equal(t, 1.0, s.cfg.Floor)
	assert.Equal(t, DefaultStrength, s.cfg.Strength)
}
