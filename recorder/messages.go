package recorder

import "time"

// StartedPayload announces a new session on the channel.
type StartedPayload struct {
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// ChunkPayload carries one encoded slice of captured audio. Timestamp is the
// millisecond offset of the chunk within the session and increases
// monotonically.
type ChunkPayload struct {
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
	SpeakerID string `json:"speaker_id,omitempty"`
	Audio     string `json:"audio"` // base64 16-bit mono PCM
}

// AudioStatusPayload is the per-tick level sample.
type AudioStatusPayload struct {
	SessionID string  `json:"session_id"`
	Level     float64 `json:"level"`
	Duration  int     `json:"duration"` // whole seconds
}

// CompletedPayload is the terminal message for a persisted recording.
type CompletedPayload struct {
	SessionID string  `json:"session_id"`
	FilePath  string  `json:"file_path"`
	Duration  float64 `json:"duration"` // seconds
}

// ErrorPayload reports a session failure on the channel.
type ErrorPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}
