package main

import (
	"encoding/json"
	"sync"
	"time"

	"minute/audio"
	"minute/channel"
	"minute/config"
	"minute/log"
	"minute/recorder"
)

// messageChannel is the slice of channel.Channel the bridge needs.
type messageChannel interface {
	Send(env channel.Envelope) bool
	Registry() *channel.Registry
	Connect()
	Shutdown()
	State() channel.State
}

type startCommand struct {
	DeviceID string `json:"device_id,omitempty"`
}

// Bridge glues the message channel to the recording session: inbound
// start/stop commands drive the session, and everything the session produces
// goes back out over the same channel.
type Bridge struct {
	ch       messageChannel
	audioCtx audio.Context
	session  *recorder.Session

	mu     sync.Mutex
	device string // preferred capture device for command-driven starts

	unsubs []func()
	once   sync.Once
}

func NewBridge(ch messageChannel, audioCtx audio.Context, cfg config.RecordingConfig) *Bridge {
	b := &Bridge{ch: ch, audioCtx: audioCtx, device: cfg.Device}
	b.session = recorder.New(audioCtx, ch, recorder.Options{
		Dir:           cfg.Dir,
		Format:        cfg.Format,
		SpeakerID:     cfg.SpeakerID,
		ChunkInterval: time.Duration(cfg.ChunkIntervalMS) * time.Millisecond,
		LevelInterval: time.Duration(cfg.LevelIntervalMS) * time.Millisecond,
		DisableVAD:    cfg.DisableVAD,
	})

	reg := ch.Registry()
	b.unsubs = append(b.unsubs,
		reg.Subscribe(channel.TypeStartRecording, b.onStart),
		reg.Subscribe(channel.TypeStopRecording, b.onStop),
		reg.SubscribeUnknown(func(env channel.Envelope) {
			log.Infof("unhandled message type %q", env.Type)
		}),
	)
	return b
}

func (b *Bridge) onStart(env channel.Envelope) {
	var cmd startCommand
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			log.Warnf("bad start_recording payload: %v", err)
		}
	}
	device := cmd.DeviceID
	if device == "" {
		device = b.DefaultDevice()
	}
	if _, err := b.session.Start(device); err != nil {
		log.Errorf("start_recording command: %v", err)
	}
}

func (b *Bridge) onStop(channel.Envelope) {
	if _, ok := b.session.Stop(); !ok {
		log.Info("stop_recording with no active session")
	}
}

func (b *Bridge) DefaultDevice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device
}

func (b *Bridge) SetDefaultDevice(id string) {
	b.mu.Lock()
	b.device = id
	b.mu.Unlock()
}

func (b *Bridge) Status() recorder.Status { return b.session.Status() }

func (b *Bridge) Devices() ([]audio.DeviceInfo, error) { return b.audioCtx.Devices() }

func (b *Bridge) LastRecordingPath() string { return b.session.LastRecordingPath() }

// Close ends any active session and tears down the channel.
func (b *Bridge) Close() {
	b.once.Do(func() {
		for _, unsub := range b.unsubs {
			unsub()
		}
		b.session.Stop()
		b.ch.Shutdown()
	})
}
