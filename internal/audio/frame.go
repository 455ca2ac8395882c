// Package audio defines the block type shared by every stage of the
// denoising pipeline and the contract a stage has to implement.
package audio

import (
	"errors"
	"math"
)

// ErrNotMono is returned by stages that only accept single-channel frames
var ErrNotMono = errors.New("audio: stage requires a mono frame")

// Frame is one fixed-length block of interleaved float32 samples.
//
// A frame is owned by whichever stage is currently transforming it. Stages
// must not keep a reference to a frame after returning their output.
type Frame struct {
	Samples  []float32
	Channels int
}

// Mono wraps samples as a single-channel frame without copying
func Mono(samples []float32) Frame {
	return Frame{Samples: samples, Channels: 1}
}

// Len returns the number of sample frames (samples per channel)
func (f Frame) Len() int {
	if f.Channels <= 1 {
		return len(f.Samples)
	}
	return len(f.Samples) / f.Channels
}

// IsMono reports whether the frame carries a single channel
func (f Frame) IsMono() bool {
	return f.Channels <= 1
}

// Clone returns a deep copy of the frame
func (f Frame) Clone() Frame {
	out := make([]float32, len(f.Samples))
	copy(out, f.Samples)
	return Frame{Samples: out, Channels: f.Channels}
}

// Stage is a real-time processing unit driven once per block.
//
// Process must finish well inside one block period and must not block on
// I/O. It receives ownership of in and hands ownership of the result back to
// the caller; returning in itself is allowed.
type Stage interface {
	Name() string
	Process(in Frame) (Frame, error)
}

// RMS returns the root-mean-square level of samples, 0 for an empty slice
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample value
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// Downmix averages all channels into a new mono slice
func Downmix(f Frame) []float32 {
	if f.IsMono() {
		out := make([]float32, len(f.Samples))
		copy(out, f.Samples)
		return out
	}

	n := f.Len()
	out := make([]float32, n)
	scale := 1 / float32(f.Channels)
	for i := 0; i < n; i++ {
		var sum float32
		for ch := 0; ch < f.Channels; ch++ {
			sum += f.Samples[i*f.Channels+ch]
		}
		out[i] = sum * scale
	}
	return out
}

// Upmix duplicates a mono frame onto channels outputs.
// Frames that already have the requested channel count are returned as is.
func Upmix(f Frame, channels int) Frame {
	if channels <= 1 || f.Channels == channels {
		return f
	}
	if !f.IsMono() {
		f = Mono(Downmix(f))
	}

	out := make([]float32, len(f.Samples)*channels)
	for i, s := range f.Samples {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = s
		}
	}
	return Frame{Samples: out, Channels: channels}
}
