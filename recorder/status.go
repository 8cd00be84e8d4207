package recorder

import (
	"errors"
	"time"
)

var (
	// ErrBusy rejects a Start while another session is acquiring or
	// recording. One session per process; no second identifier is minted.
	ErrBusy = errors.New("recording already in progress")

	ErrDeviceUnavailable  = errors.New("no usable audio device")
	ErrEncodingFailure    = errors.New("audio encoding failed")
	ErrPersistenceFailure = errors.New("recording could not be written")
)

// Status is the broadcast recording snapshot. Invariant: when IsRecording is
// false, SessionID is empty and AudioLevel is zero.
type Status struct {
	IsRecording  bool      `json:"isRecording"`
	SessionID    string    `json:"sessionId,omitempty"`
	StartTime    time.Time `json:"startTime,omitzero"`
	Duration     int       `json:"duration"` // whole seconds
	AudioLevel   float64   `json:"audioLevel"`
	DeviceID     string    `json:"deviceId,omitempty"`
	Warning      string    `json:"warning,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}
