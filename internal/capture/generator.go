package capture

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-hush/internal/audio"
)

// Generator is a synthetic source: a sine tone in bursts over white noise.
// It stands in for a microphone in mock mode and in tests.
type Generator struct {
	cfg Config
	rng *rand.Rand

	mu     sync.Mutex
	phase  float64
	block  int
	ticker *time.Ticker
	closed bool

	blocksRead atomic.Uint64
}

// NewGenerator creates a generator. A zero seed picks a time-based seed.
func NewGenerator(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultConfig().BlockSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Name implements Source
func (g *Generator) Name() string { return BackendGenerator }

// Speaking reports whether block n falls inside a tone burst. The pattern
// opens with a gap so a learning suppressor sees noise first.
func (g *Generator) Speaking(n int) bool {
	if g.cfg.GapBlocks <= 0 {
		return true
	}
	if g.cfg.BurstBlocks <= 0 {
		return false
	}
	return n%(g.cfg.BurstBlocks+g.cfg.GapBlocks) >= g.cfg.GapBlocks
}

// Read implements Source. In realtime mode it paces blocks at the block
// duration.
func (g *Generator) Read(ctx context.Context) (audio.Frame, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return audio.Frame{}, ErrCaptureAborted
	}
	if g.cfg.Realtime && g.ticker == nil {
		g.ticker = time.NewTicker(g.cfg.BlockDuration())
	}
	ticker := g.ticker
	g.mu.Unlock()

	if ticker != nil {
		select {
		case <-ctx.Done():
			return audio.Frame{}, classify(ctx.Err())
		case <-ticker.C:
		}
	} else if err := ctx.Err(); err != nil {
		return audio.Frame{}, classify(err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]float32, g.cfg.BlockSize)
	tone := g.Speaking(g.block)
	step := 2 * math.Pi * g.cfg.Frequency / float64(g.cfg.SampleRate)
	for i := range out {
		var v float64
		if tone {
			v = g.cfg.Amplitude * math.Sin(g.phase)
		}
		if g.cfg.NoiseAmplitude > 0 {
			v += (g.rng.Float64()*2 - 1) * g.cfg.NoiseAmplitude
		}
		out[i] = float32(v)
		g.phase = math.Mod(g.phase+step, 2*math.Pi)
	}
	g.block++
	g.blocksRead.Add(1)
	return audio.Mono(out), nil
}

// BlocksRead returns how many blocks were produced
func (g *Generator) BlocksRead() uint64 { return g.blocksRead.Load() }

// Close implements Source
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	if g.ticker != nil {
		g.ticker.Stop()
	}
	return nil
}

// Discard is a sink that drops every block
type Discard struct {
	blocks  atomic.Uint64
	samples atomic.Uint64
}

// NewDiscard creates a discarding sink
func NewDiscard() *Discard { return &Discard{} }

// Name implements Sink
func (d *Discard) Name() string { return "discard" }

// Write implements Sink
func (d *Discard) Write(f audio.Frame) error {
	d.blocks.Add(1)
	d.samples.Add(uint64(len(f.Samples)))
	return nil
}

// Blocks returns how many blocks were written
func (d *Discard) Blocks() uint64 { return d.blocks.Load() }

// Close implements Sink
func (d *Discard) Close() error { return nil }
