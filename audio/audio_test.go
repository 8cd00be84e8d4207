package audio

import "testing"

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Jabra Elite 75t", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
		{"Headset (Bluetooth)", true},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestByID(t *testing.T) {
	ctx := NewFakeContext(
		DeviceInfo{ID: "mic-1", Name: "Desk Mic", IsInput: true, IsDefault: true},
		DeviceInfo{ID: "mic-2", Name: "Webcam Mic", IsInput: true},
	)

	dev, ok := ByID(ctx, "mic-2")
	if !ok || dev == nil || dev.Name != "Webcam Mic" {
		t.Fatalf("ByID(mic-2) = %v, %v", dev, ok)
	}

	dev, ok = ByID(ctx, "")
	if !ok || dev != nil {
		t.Fatalf("ByID(\"\") should resolve to system default, got %v, %v", dev, ok)
	}

	if _, ok := ByID(ctx, "gone"); ok {
		t.Fatal("ByID should fail for an unknown ID")
	}
}

func TestFakeCaptureDropsPushBeforeStart(t *testing.T) {
	ctx := NewFakeContext()
	cap, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	fc := cap.(*FakeCapture)

	var got int
	fc.SetCallback(func(data []byte, _ uint32) { got += len(data) })

	fc.Push(make([]byte, 64)) // not started yet
	if got != 0 {
		t.Fatalf("callback fired before Start, got %d bytes", got)
	}

	if err := fc.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Push(make([]byte, 64))
	if got != 64 {
		t.Fatalf("got %d bytes, want 64", got)
	}
}

func TestFakeContextFailDevice(t *testing.T) {
	ctx := NewFakeContext(DeviceInfo{ID: "mic-1", Name: "Desk Mic", IsInput: true})
	ctx.FailDevice("mic-1")

	dev, _ := ByID(ctx, "mic-1")
	if _, err := ctx.NewCapture(dev, CaptureConfig{}); err == nil {
		t.Fatal("expected failure for failed device")
	}
	if _, err := ctx.NewCapture(nil, CaptureConfig{}); err != nil {
		t.Fatalf("default device should still open: %v", err)
	}
}
