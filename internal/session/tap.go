package session

import (
	"sync"

	"github.com/teslashibe/go-hush/internal/audio"
)

// DefaultTapSize matches a 2048-point analyser window
const DefaultTapSize = 2048

// Level is the loudness of a tap window
type Level struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

// Tap keeps the most recent samples seen at a monitor node. Stereo blocks
// are downmixed before they are stored.
type Tap struct {
	mu     sync.Mutex
	ring   []float32
	pos    int
	filled bool
	blocks uint64
}

// NewTap creates a tap holding size samples
func NewTap(size int) *Tap {
	if size <= 0 {
		size = DefaultTapSize
	}
	return &Tap{ring: make([]float32, size)}
}

// Write appends a block to the window
func (t *Tap) Write(f audio.Frame) {
	samples := f.Samples
	if !f.IsMono() {
		samples = audio.Downmix(f)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Only the newest window's worth matters
	if len(samples) > len(t.ring) {
		samples = samples[len(samples)-len(t.ring):]
	}
	for len(samples) > 0 {
		n := copy(t.ring[t.pos:], samples)
		samples = samples[n:]
		t.pos += n
		if t.pos == len(t.ring) {
			t.pos = 0
			t.filled = true
		}
	}
	t.blocks++
}

// Samples returns the window, oldest sample first
func (t *Tap) Samples() []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samplesLocked()
}

func (t *Tap) samplesLocked() []float32 {
	if !t.filled {
		return append([]float32(nil), t.ring[:t.pos]...)
	}
	out := make([]float32, 0, len(t.ring))
	out = append(out, t.ring[t.pos:]...)
	return append(out, t.ring[:t.pos]...)
}

// Level computes RMS and peak over the window
func (t *Tap) Level() Level {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.pos
	if t.filled {
		n = len(t.ring)
	}
	window := t.ring[:n]
	return Level{RMS: audio.RMS(window), Peak: audio.Peak(window)}
}

// Blocks returns how many blocks have been written
func (t *Tap) Blocks() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocks
}

// Reset clears the window
func (t *Tap) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.ring)
	t.pos = 0
	t.filled = false
}
