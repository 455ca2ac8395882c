package suppressor

import (
	"context"
	"sync/atomic"

	"github.com/teslashibe/go-hush/internal/audio"
)

// Bypass is a pass-through collaborator
type Bypass struct{}

// Name implements Suppressor
func (Bypass) Name() string { return KindBypass }

// Start implements Suppressor
func (Bypass) Start(ctx context.Context, track Track) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &bypassSession{}, nil
}

type bypassSession struct {
	stopped atomic.Bool
}

func (s *bypassSession) Process(in audio.Frame) (audio.Frame, error) {
	if s.stopped.Load() {
		return audio.Frame{}, ErrNotStarted
	}
	return in, nil
}

func (s *bypassSession) Stop() error {
	s.stopped.Store(true)
	return nil
}
