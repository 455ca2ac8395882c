//go:build !portaudio

package capture

import (
	"fmt"
	"log/slog"
)

func openPortAudio(cfg Config, logger *slog.Logger) (Source, Sink, error) {
	return nil, nil, fmt.Errorf("%w: built without portaudio support (rebuild with -tags portaudio)", ErrSourceNotFound)
}
