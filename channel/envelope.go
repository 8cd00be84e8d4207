package channel

import (
	"encoding/json"
	"errors"
)

// Envelope is the wire unit for every exchange: a type tag plus an opaque
// payload whose shape is determined by the tag.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Known message type tags. Inbound envelopes with other tags still flow
// through the registry's unknown-type bucket, so new server events work
// without a client update.
const (
	TypeStartRecording        = "start_recording"
	TypeStopRecording         = "stop_recording"
	TypeAudioChunk            = "audio_chunk"
	TypeAudioStatus           = "audio_status"
	TypeRecordingStatusUpdate = "recording_status_update"
	TypeRecordingCompleted    = "recording_completed"
	TypeError                 = "error"
)

func KnownType(t string) bool {
	switch t {
	case TypeStartRecording, TypeStopRecording, TypeAudioChunk,
		TypeAudioStatus, TypeRecordingStatusUpdate, TypeRecordingCompleted,
		TypeError:
		return true
	}
	return false
}

// NewEnvelope marshals data into an envelope with the given tag.
func NewEnvelope(msgType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Data: raw}, nil
}

func parseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, errors.New("envelope missing type")
	}
	return env, nil
}
