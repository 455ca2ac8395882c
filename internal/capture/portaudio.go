//go:build portaudio

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/teslashibe/go-hush/internal/audio"
)

// PortAudioSource reads mono blocks from an input device
type PortAudioSource struct {
	logger *slog.Logger
	stream *portaudio.Stream
	buf    []float32
	once   sync.Once
}

// PortAudioSink writes interleaved stereo blocks to an output device
type PortAudioSink struct {
	logger *slog.Logger
	stream *portaudio.Stream
	buf    []float32
	once   sync.Once
}

func openPortAudio(cfg Config, logger *slog.Logger) (Source, Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("%w: portaudio: %v", ErrSourceNotReadable, err)
	}

	in, err := findDevice(cfg.Device, true)
	if err != nil {
		portaudio.Terminate()
		return nil, nil, err
	}
	out, err := portaudio.DefaultOutputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, nil, fmt.Errorf("%w: no output device: %v", ErrSourceNotFound, err)
	}

	src := &PortAudioSource{logger: logger, buf: make([]float32, cfg.BlockSize)}
	src.stream, err = portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   in,
			Channels: 1,
			Latency:  in.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BlockSize,
	}, src.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, nil, fmt.Errorf("%w: open %s: %v", ErrSourceNotReadable, in.Name, err)
	}

	sink := &PortAudioSink{logger: logger, buf: make([]float32, cfg.BlockSize*2)}
	sink.stream, err = portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   out,
			Channels: 2,
			Latency:  out.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BlockSize,
	}, sink.buf)
	if err != nil {
		src.stream.Close()
		portaudio.Terminate()
		return nil, nil, fmt.Errorf("%w: open output %s: %v", ErrSourceNotReadable, out.Name, err)
	}

	if err := src.stream.Start(); err != nil {
		src.stream.Close()
		sink.stream.Close()
		portaudio.Terminate()
		return nil, nil, fmt.Errorf("%w: start %s: %v", ErrSourceNotReadable, in.Name, err)
	}
	if err := sink.stream.Start(); err != nil {
		src.stream.Close()
		sink.stream.Close()
		portaudio.Terminate()
		return nil, nil, fmt.Errorf("%w: start output %s: %v", ErrSourceNotReadable, out.Name, err)
	}

	logger.Info("started audio capture", "device", in.Name, "output", out.Name, "sample_rate", cfg.SampleRate)
	return src, sink, nil
}

// findDevice returns the named input device, or the default one
func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceNotReadable, err)
	}
	for _, dev := range devices {
		if input && dev.MaxInputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), strings.ToLower(name)) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, name)
}

// Name implements Source
func (s *PortAudioSource) Name() string { return BackendPortAudio }

// Read implements Source
func (s *PortAudioSource) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, classify(err)
	}
	if err := s.stream.Read(); err != nil {
		if err == portaudio.InputOverflowed {
			s.logger.Debug("audio input overflowed")
		} else {
			return audio.Frame{}, fmt.Errorf("%w: %v", ErrCaptureAborted, err)
		}
	}
	out := make([]float32, len(s.buf))
	copy(out, s.buf)
	return audio.Mono(out), nil
}

// Close implements Source
func (s *PortAudioSource) Close() error {
	s.once.Do(func() {
		s.stream.Stop()
		s.stream.Close()
	})
	return nil
}

// Name implements Sink
func (s *PortAudioSink) Name() string { return BackendPortAudio }

// Write implements Sink
func (s *PortAudioSink) Write(f audio.Frame) error {
	if f.Channels != 2 {
		f = audio.Upmix(f, 2)
	}
	n := copy(s.buf, f.Samples)
	clear(s.buf[n:])
	if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
		return fmt.Errorf("playback write: %w", err)
	}
	return nil
}

// Close implements Sink and releases PortAudio
func (s *PortAudioSink) Close() error {
	s.once.Do(func() {
		s.stream.Stop()
		s.stream.Close()
		portaudio.Terminate()
	})
	return nil
}
