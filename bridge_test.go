package main

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"minute/audio"
	"minute/channel"
	"minute/config"
)

type fakeChannel struct {
	reg *channel.Registry

	mu   sync.Mutex
	envs []channel.Envelope
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{reg: channel.NewRegistry()}
}

func (f *fakeChannel) Send(env channel.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envs = append(f.envs, env)
	return true
}

func (f *fakeChannel) Registry() *channel.Registry { return f.reg }
func (f *fakeChannel) Connect()                    {}
func (f *fakeChannel) Shutdown()                   {}
func (f *fakeChannel) State() channel.State        { return channel.StateOpen }

func (f *fakeChannel) byType(msgType string) []channel.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []channel.Envelope
	for _, env := range f.envs {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

// testRecordingConfig parks the level monitor on a huge interval so message
// counts stay deterministic.
func testRecordingConfig(t *testing.T) config.RecordingConfig {
	t.Helper()
	return config.RecordingConfig{
		Dir:             t.TempDir(),
		Format:          "wav",
		SpeakerID:       "local",
		ChunkIntervalMS: 10,
		LevelIntervalMS: 3600000,
		DisableVAD:      true,
	}
}

func command(t *testing.T, msgType string, data any) channel.Envelope {
	t.Helper()
	env, err := channel.NewEnvelope(msgType, data)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func loudPCM(n int) []byte {
	pcm := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], 1000)
	}
	return pcm
}

func TestBridgeCommandDrivenRecording(t *testing.T) {
	ctx := audio.NewFakeContext(audio.DeviceInfo{ID: "mic1", Name: "USB Microphone", IsInput: true})
	ch := newFakeChannel()
	b := NewBridge(ch, ctx, testRecordingConfig(t))
	defer b.Close()

	ch.reg.Dispatch(command(t, channel.TypeStartRecording, startCommand{DeviceID: "mic1"}))

	st := b.Status()
	if !st.IsRecording || st.SessionID == "" {
		t.Fatalf("status after start command = %+v", st)
	}

	ctx.Captures()[0].Push(loudPCM(320))
	if n := len(ch.byType(channel.TypeAudioChunk)); n != 1 {
		t.Fatalf("got %d audio chunks, want 1", n)
	}

	ch.reg.Dispatch(command(t, channel.TypeStopRecording, nil))

	if st := b.Status(); st.IsRecording {
		t.Fatalf("still recording after stop command: %+v", st)
	}
	done := ch.byType(channel.TypeRecordingCompleted)
	if len(done) != 1 {
		t.Fatalf("recording_completed sent %d times, want 1", len(done))
	}
	var p struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(done[0].Data, &p); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p.FilePath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if b.LastRecordingPath() != p.FilePath {
		t.Fatalf("last recording path = %q, want %q", b.LastRecordingPath(), p.FilePath)
	}
}

func TestBridgeStopWithoutSessionIsIgnored(t *testing.T) {
	ctx := audio.NewFakeContext(audio.DeviceInfo{ID: "mic1", Name: "USB Microphone", IsInput: true})
	ch := newFakeChannel()
	b := NewBridge(ch, ctx, testRecordingConfig(t))
	defer b.Close()

	ch.reg.Dispatch(command(t, channel.TypeStopRecording, nil))

	if n := len(ch.byType(channel.TypeRecordingCompleted)); n != 0 {
		t.Fatalf("recording_completed sent %d times for a no-op stop", n)
	}
	if n := len(ch.byType(channel.TypeError)); n != 0 {
		t.Fatalf("error sent %d times for a no-op stop", n)
	}
}

func TestBridgeUsesPreferredDeviceWhenCommandOmitsIt(t *testing.T) {
	ctx := audio.NewFakeContext(audio.DeviceInfo{ID: "mic1", Name: "USB Microphone", IsInput: true})
	ch := newFakeChannel()
	cfg := testRecordingConfig(t)
	cfg.Device = "mic1"
	b := NewBridge(ch, ctx, cfg)
	defer b.Close()

	ch.reg.Dispatch(command(t, channel.TypeStartRecording, nil))

	caps := ctx.Captures()
	if len(caps) != 1 || caps[0].DeviceName() != "USB Microphone" {
		t.Fatalf("captures = %v", caps)
	}

	ch.reg.Dispatch(command(t, channel.TypeStopRecording, nil))

	// After the preferred device is cleared, starts land on the default.
	b.SetDefaultDevice("")
	ch.reg.Dispatch(command(t, channel.TypeStartRecording, nil))
	caps = ctx.Captures()
	if len(caps) != 2 || caps[1].DeviceName() != "system default" {
		t.Fatalf("captures = %v", caps)
	}
}

func TestBridgeSecondStartCommandRejected(t *testing.T) {
	ctx := audio.NewFakeContext(audio.DeviceInfo{ID: "mic1", Name: "USB Microphone", IsInput: true})
	ch := newFakeChannel()
	b := NewBridge(ch, ctx, testRecordingConfig(t))
	defer b.Close()

	ch.reg.Dispatch(command(t, channel.TypeStartRecording, startCommand{DeviceID: "mic1"}))
	first := b.Status().SessionID

	ch.reg.Dispatch(command(t, channel.TypeStartRecording, startCommand{DeviceID: "mic1"}))

	if got := b.Status().SessionID; got != first {
		t.Fatalf("session changed: %q -> %q", first, got)
	}
	if len(ctx.Captures()) != 1 {
		t.Fatalf("rejected start opened a device (%d captures)", len(ctx.Captures()))
	}
}

func TestBridgeCloseEndsSession(t *testing.T) {
	ctx := audio.NewFakeContext(audio.DeviceInfo{ID: "mic1", Name: "USB Microphone", IsInput: true})
	ch := newFakeChannel()
	b := NewBridge(ch, ctx, testRecordingConfig(t))

	ch.reg.Dispatch(command(t, channel.TypeStartRecording, startCommand{DeviceID: "mic1"}))
	b.Close()
	b.Close() // idempotent

	if st := b.Status(); st.IsRecording {
		t.Fatalf("still recording after close: %+v", st)
	}
	if !ctx.Captures()[0].Closed() {
		t.Fatal("device held after close")
	}
}
