package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-hush/internal/protocol"
	"github.com/teslashibe/go-hush/internal/session"
	"github.com/teslashibe/go-hush/internal/spatial"
	"github.com/teslashibe/go-hush/internal/wavelet"
)

// errNoSession is returned when the daemon runs without a pipeline
var errNoSession = errors.New("session not available")

// control applies commands from HTTP and WebSocket clients to the session
type control struct {
	sess *session.Session
}

func (c control) setProcessing(ctx context.Context, cmd protocol.ProcessingCommand) error {
	if c.sess == nil {
		return errNoSession
	}
	if cmd.Enabled {
		return c.sess.Enable(ctx)
	}
	return c.sess.Disable(ctx)
}

func (c control) setThreshold(cmd protocol.ThresholdCommand) error {
	if c.sess == nil {
		return errNoSession
	}
	return c.sess.SetThreshold(cmd.Threshold)
}

// setAzimuth returns the snapped azimuth actually applied
func (c control) setAzimuth(cmd protocol.AzimuthCommand) (int, error) {
	if c.sess == nil {
		return 0, errNoSession
	}
	if cmd.Angle != nil {
		return c.sess.SetAzimuthAngle(*cmd.Angle)
	}
	return c.sess.SetAzimuth(cmd.Azimuth)
}

func (c control) setWavelet(cmd protocol.ProcessingCommand) error {
	if c.sess == nil {
		return errNoSession
	}
	return c.sess.SetWaveletEnabled(cmd.Enabled)
}

// dispatch runs a WebSocket command and builds the reply
func (c control) dispatch(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	switch msg.Type {
	case protocol.TypePing:
		return protocol.NewMessage(protocol.TypePong, nil)

	case protocol.TypeGetState:
		if c.sess == nil {
			return nil, errNoSession
		}
		return protocol.NewMessage(protocol.TypeState, c.sess.State())

	case protocol.TypeSetProcessing:
		cmd, err := msg.GetProcessingCommand()
		if err != nil {
			return nil, err
		}
		if err := c.setProcessing(ctx, *cmd); err != nil {
			return nil, err
		}
		return protocol.NewMessage(protocol.TypeState, c.sess.State())

	case protocol.TypeSetThreshold:
		cmd, err := msg.GetThresholdCommand()
		if err != nil {
			return nil, err
		}
		if err := c.setThreshold(*cmd); err != nil {
			return nil, err
		}
		return protocol.NewMessage(protocol.TypeState, c.sess.State())

	case protocol.TypeSetAzimuth:
		cmd, err := msg.GetAzimuthCommand()
		if err != nil {
			return nil, err
		}
		if _, err := c.setAzimuth(*cmd); err != nil {
			return nil, err
		}
		return protocol.NewMessage(protocol.TypeState, c.sess.State())

	case protocol.TypeSetWavelet:
		cmd, err := msg.GetProcessingCommand()
		if err != nil {
			return nil, err
		}
		if err := c.setWavelet(*cmd); err != nil {
			return nil, err
		}
		return protocol.NewMessage(protocol.TypeState, c.sess.State())
	}

	return nil, fmt.Errorf("unknown command %q", msg.Type)
}

// statusFor maps a control error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrEnableFailed):
		return fiber.StatusBadGateway
	case errors.Is(err, wavelet.ErrInvalidThreshold),
		errors.Is(err, spatial.ErrInvalidAzimuth):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrUpdateQueueFull),
		errors.Is(err, errNoSession):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, session.ErrSessionClosed):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}
