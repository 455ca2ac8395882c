// Package protocol defines the WebSocket messages of the control channel and
// the remote suppressor link.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → daemon control commands
	TypeSetProcessing MessageType = "set_processing"
	TypeSetThreshold  MessageType = "set_threshold"
	TypeSetAzimuth    MessageType = "set_azimuth"
	TypeSetWavelet    MessageType = "set_wavelet"
	TypeGetState      MessageType = "get_state"

	// Daemon → client updates
	TypeState  MessageType = "state"  // Session snapshot
	TypeLevels MessageType = "levels" // Tap levels
	TypeMode   MessageType = "mode"   // Raw/processing transition
	TypeError  MessageType = "error"  // Command rejected

	// Daemon → remote suppressor
	TypeHello MessageType = "hello"

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// ProcessingCommand switches between the raw and processed paths
type ProcessingCommand struct {
	Enabled bool `json:"enabled"`
}

// GetProcessingCommand extracts a set_processing or set_wavelet payload
func (m *Message) GetProcessingCommand() (*ProcessingCommand, error) {
	var data ProcessingCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ThresholdCommand sets the wavelet shrinkage threshold
type ThresholdCommand struct {
	Threshold float64 `json:"threshold"`
}

// GetThresholdCommand extracts a set_threshold payload
func (m *Message) GetThresholdCommand() (*ThresholdCommand, error) {
	var data ThresholdCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// AzimuthCommand moves the virtual source. Angle is a raw drag angle in
// degrees; when set it takes precedence over Azimuth and is snapped.
type AzimuthCommand struct {
	Azimuth int      `json:"azimuth"`
	Angle   *float64 `json:"angle,omitempty"`
}

// GetAzimuthCommand extracts a set_azimuth payload
func (m *Message) GetAzimuthCommand() (*AzimuthCommand, error) {
	var data AzimuthCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ModeData announces a mode transition
type ModeData struct {
	Mode     string `json:"mode"`
	Previous string `json:"previous"`
}

// NewModeMessage creates a mode message
func NewModeMessage(mode, previous string) (*Message, error) {
	return NewMessage(TypeMode, ModeData{Mode: mode, Previous: previous})
}

// LevelData is the level of one tap
type LevelData struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

// LevelsData carries the pre and post tap levels
type LevelsData struct {
	Pre  LevelData `json:"pre"`
	Post LevelData `json:"post"`
}

// NewLevelsMessage creates a levels message
func NewLevelsMessage(pre, post LevelData) (*Message, error) {
	return NewMessage(TypeLevels, LevelsData{Pre: pre, Post: post})
}

// ErrorData reports a rejected command
type ErrorData struct {
	Command MessageType `json:"command,omitempty"`
	Error   string      `json:"error"`
}

// NewErrorMessage creates an error message for a rejected command
func NewErrorMessage(command MessageType, err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Command: command, Error: err.Error()})
}

// HelloData opens a remote suppressor stream
type HelloData struct {
	SessionID  string `json:"session_id,omitempty"`
	SampleRate int    `json:"sample_rate"`
	BlockSize  int    `json:"block_size"`
	Format     string `json:"format"`
}

// PCMFormat names the binary frame encoding
const PCMFormat = "f32le"

// NewHelloMessage creates the hello message sent when a remote stream opens
func NewHelloMessage(sessionID string, sampleRate, blockSize int) (*Message, error) {
	return NewMessage(TypeHello, HelloData{
		SessionID:  sessionID,
		SampleRate: sampleRate,
		BlockSize:  blockSize,
		Format:     PCMFormat,
	})
}

// GetHello extracts a hello payload
func (m *Message) GetHello() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
