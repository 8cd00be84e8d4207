package recorder

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"minute/audio"
	"minute/channel"
	"minute/encoder"
	"minute/log"
)

const (
	defaultChunkInterval = 500 * time.Millisecond
	defaultLevelInterval = 200 * time.Millisecond

	// Level floor standing in for speech detection when VAD is unavailable.
	speechLevelFloor = 0.02

	silenceWarning   = "no audio detected - check your microphone"
	bluetoothWarning = "bluetooth microphone may reduce audio quality"
)

// Sender is the outbound half of the message channel. Send reports whether
// the message went out immediately; a false return means it was queued for a
// later flush, which is not a loss.
type Sender interface {
	Send(env channel.Envelope) bool
}

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

type Options struct {
	Dir       string // recordings directory
	Format    string // "wav" or "flac"
	SpeakerID string

	ChunkInterval time.Duration // audio per outbound chunk, default 500ms
	LevelInterval time.Duration // level sampling period, default 200ms

	// OnStatus receives every status snapshot, including the terminal one.
	OnStatus func(Status)

	// DisableVAD switches speech detection to the level-threshold fallback.
	DisableVAD bool
}

// Result describes a finished session.
type Result struct {
	SessionID string
	FilePath  string
	Duration  time.Duration
}

// Session runs at most one recording at a time: Start on a busy session is
// rejected rather than queued, and Stop on an idle one is a no-op.
type Session struct {
	audioCtx   audio.Context
	sender     Sender
	opts       Options
	chunkBytes int

	analyzer levelAnalyzer

	mu          sync.Mutex
	state       State
	id          string
	deviceID    string
	startTime   time.Time
	capture     audio.CaptureDevice
	enc         encoder.Encoder
	ext         string
	vad         *vadProcessor
	silence     *silenceMonitor
	pcmPending  []byte  // raw PCM waiting to be cut into a chunk
	encPending  []int16 // samples short of a full encoder block
	sentBytes   uint64
	chunks      int
	ticks       int
	level       float64
	warning     string
	lastPath    string
	stopCh      chan struct{}
	monitorDone chan struct{}
}

func New(audioCtx audio.Context, sender Sender, opts Options) *Session {
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = defaultChunkInterval
	}
	if opts.LevelInterval <= 0 {
		opts.LevelInterval = defaultLevelInterval
	}
	if opts.Format == "" {
		opts.Format = "wav"
	}
	return &Session{
		audioCtx:   audioCtx,
		sender:     sender,
		opts:       opts,
		chunkBytes: int(opts.ChunkInterval.Milliseconds()) * encoder.BytesPerSecond / 1000,
	}
}

// Start acquires a capture device, mints a session ID and begins streaming.
// The requested device gets one fallback to the system default before the
// whole start fails. Returns ErrBusy while a session is already underway.
func (s *Session) Start(deviceID string) (string, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.state = StateAcquiring
	s.mu.Unlock()

	capture, err := s.acquire(deviceID)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		log.Errorf("start failed: %v", err)
		s.sendError("", err)
		s.notify(Status{ErrorMessage: err.Error()})
		return "", err
	}

	enc, ext, err := encoder.New(s.opts.Format)
	if err != nil {
		capture.Stop()
		capture.ClearCallback()
		capture.Close()
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return "", err
	}

	var vp *vadProcessor
	if !s.opts.DisableVAD {
		if vp, err = newVADProcessor(); err != nil {
			log.Warnf("vad unavailable, using level threshold: %v", err)
			vp = nil
		}
	}

	id := uuid.NewString()
	now := time.Now()
	stopCh := make(chan struct{})
	done := make(chan struct{})

	s.analyzer.Reset()

	s.mu.Lock()
	s.state = StateRecording
	s.id = id
	s.deviceID = deviceID
	s.startTime = now
	s.capture = capture
	s.enc = enc
	s.ext = ext
	s.vad = vp
	s.silence = newSilenceMonitor(s.opts.LevelInterval)
	s.pcmPending = nil
	s.encPending = nil
	s.sentBytes = 0
	s.chunks = 0
	s.ticks = 0
	s.level = 0
	s.warning = ""
	if audio.IsBluetooth(capture.DeviceName()) {
		s.warning = bluetoothWarning
	}
	s.stopCh = stopCh
	s.monitorDone = done
	status := s.statusLocked()
	s.mu.Unlock()

	if env, err := channel.NewEnvelope(channel.TypeStartRecording, StartedPayload{
		SessionID: id,
		DeviceID:  deviceID,
		StartedAt: now,
	}); err == nil {
		s.sender.Send(env)
	}
	log.SessionStart(id, capture.DeviceName())
	s.notify(status)

	go s.runMonitor(stopCh, done)
	return id, nil
}

// Stop finalizes the current session: release the device, flush the encoder,
// persist the artifact and report completion. Stopping an idle session
// returns false without minting errors, so repeated stops are safe.
func (s *Session) Stop() (Result, bool) {
	return s.finish(nil)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// LastRecordingPath is the artifact path of the most recent persisted
// session, empty before the first one completes.
func (s *Session) LastRecordingPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath
}

func (s *Session) acquire(deviceID string) (audio.CaptureDevice, error) {
	dev, ok := audio.ByID(s.audioCtx, deviceID)
	if !ok {
		log.Warnf("device %q not found, trying system default", deviceID)
	}
	capture, err := s.openAndStart(dev)
	if err != nil && dev != nil {
		// One fallback to the system default, then the start fails.
		log.Warnf("device %q unavailable (%v), trying system default", dev.Name, err)
		capture, err = s.openAndStart(nil)
	}
	return capture, err
}

func (s *Session) openAndStart(dev *audio.DeviceInfo) (audio.CaptureDevice, error) {
	capture, err := s.audioCtx.NewCapture(dev, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, err
	}
	capture.SetCallback(s.onPCM)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, err
	}
	return capture, nil
}

func (s *Session) onPCM(data []byte, _ uint32) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return // late media callbacks after stop carry no session
	}
	vp := s.vad
	enc := s.enc

	for i := 0; i+1 < len(data); i += 2 {
		s.encPending = append(s.encPending, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	var encodeErr error
	for len(s.encPending) >= encoder.BlockSize && encodeErr == nil {
		encodeErr = enc.EncodeBlock(s.encPending[:encoder.BlockSize])
		s.encPending = s.encPending[encoder.BlockSize:]
	}

	var payloads []ChunkPayload
	s.pcmPending = append(s.pcmPending, data...)
	for len(s.pcmPending) >= s.chunkBytes {
		payloads = append(payloads, ChunkPayload{
			SessionID: s.id,
			Timestamp: int64(s.sentBytes) * 1000 / encoder.BytesPerSecond,
			SpeakerID: s.opts.SpeakerID,
			Audio:     base64.StdEncoding.EncodeToString(s.pcmPending[:s.chunkBytes]),
		})
		s.sentBytes += uint64(s.chunkBytes)
		s.chunks++
		s.pcmPending = s.pcmPending[s.chunkBytes:]
	}
	s.mu.Unlock()

	s.analyzer.Feed(data)
	if vp != nil {
		vp.Process(data)
	}

	if encodeErr != nil {
		// Finalize must not run on the media callback goroutine: releasing
		// the device waits for in-flight callbacks.
		go s.finish(fmt.Errorf("%w: %v", ErrEncodingFailure, encodeErr))
		return
	}

	for _, p := range payloads {
		env, err := channel.NewEnvelope(channel.TypeAudioChunk, p)
		if err != nil {
			continue
		}
		s.sender.Send(env)
	}
}

func (s *Session) finish(cause error) (Result, bool) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return Result{}, false
	}
	s.state = StateFinalizing
	capture := s.capture
	enc := s.enc
	ext := s.ext
	id := s.id
	startTime := s.startTime
	encPending := s.encPending
	chunks := s.chunks
	sentBytes := s.sentBytes
	stopCh, done := s.stopCh, s.monitorDone
	s.mu.Unlock()

	close(stopCh)
	<-done

	// The device is released before persistence and regardless of it.
	capture.Stop()
	capture.ClearCallback()
	capture.Close()

	duration := time.Since(startTime)

	if cause == nil && len(encPending) > 0 {
		if err := enc.EncodeBlock(encPending); err != nil {
			cause = fmt.Errorf("%w: %v", ErrEncodingFailure, err)
		}
	}
	if cause == nil {
		if err := enc.Close(); err != nil {
			cause = fmt.Errorf("%w: %v", ErrEncodingFailure, err)
		}
	}

	var path string
	if cause == nil {
		path = filepath.Join(s.opts.Dir, id+"."+ext)
		if err := writeArtifact(path, enc.Bytes()); err != nil {
			cause = fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
			path = ""
		}
	}

	s.mu.Lock()
	s.state = StateIdle
	s.id = ""
	s.deviceID = ""
	s.level = 0
	s.ticks = 0
	s.warning = ""
	s.capture = nil
	s.enc = nil
	s.vad = nil
	s.silence = nil
	s.pcmPending = nil
	s.encPending = nil
	if path != "" {
		s.lastPath = path
	}
	s.mu.Unlock()

	if cause != nil {
		log.Errorf("session %s failed: %v", id, cause)
		s.sendError(id, cause)
		s.notify(Status{ErrorMessage: cause.Error()})
		return Result{SessionID: id, Duration: duration}, true
	}

	if env, err := channel.NewEnvelope(channel.TypeRecordingCompleted, CompletedPayload{
		SessionID: id,
		FilePath:  path,
		Duration:  duration.Seconds(),
	}); err == nil {
		s.sender.Send(env)
	}
	log.SessionEnd(id, path, duration, chunks, float64(sentBytes)/1024)
	s.notify(Status{})
	return Result{SessionID: id, FilePath: path, Duration: duration}, true
}

func (s *Session) runMonitor(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.LevelInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.tick() {
				return
			}
		}
	}
}

// tick samples the level, advances the silence monitor and publishes a
// status snapshot. Returns false once the session is no longer recording.
func (s *Session) tick() bool {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return false
	}
	level := s.analyzer.Level()
	s.level = level
	s.ticks++

	hasSpeech := level >= speechLevelFloor
	if s.vad != nil {
		hasSpeech = s.vad.HasSpeechTick()
	}
	switch s.silence.Tick(hasSpeech) {
	case SilenceWarn:
		s.warning = silenceWarning
		log.Warnf("session %s: no voice detected", s.id)
	case SilenceWarnClear:
		s.warning = ""
	case SilenceRepeat:
		log.Warnf("session %s: still no voice", s.id)
	}
	status := s.statusLocked()
	s.mu.Unlock()

	s.notify(status)
	if env, err := channel.NewEnvelope(channel.TypeRecordingStatusUpdate, status); err == nil {
		s.sender.Send(env)
	}
	if env, err := channel.NewEnvelope(channel.TypeAudioStatus, AudioStatusPayload{
		SessionID: status.SessionID,
		Level:     status.AudioLevel,
		Duration:  status.Duration,
	}); err == nil {
		s.sender.Send(env)
	}
	return true
}

func (s *Session) statusLocked() Status {
	if s.state != StateRecording {
		return Status{}
	}
	return Status{
		IsRecording: true,
		SessionID:   s.id,
		StartTime:   s.startTime,
		Duration:    int(time.Duration(s.ticks) * s.opts.LevelInterval / time.Second),
		AudioLevel:  s.level,
		DeviceID:    s.deviceID,
		Warning:     s.warning,
	}
}

func (s *Session) notify(st Status) {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(st)
	}
}

func (s *Session) sendError(id string, err error) {
	if env, e := channel.NewEnvelope(channel.TypeError, ErrorPayload{
		SessionID: id,
		Message:   err.Error(),
	}); e == nil {
		s.sender.Send(env)
	}
}

func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
