package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth reports whether a device name looks like a Bluetooth headset.
// Used to warn about lower capture quality, never to reject a device.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DeviceInfo describes one enumerable capture source. The descriptor is a
// snapshot: it may go stale when hardware changes, which surfaces as a
// capture failure on the next open, not as a mutation here.
type DeviceInfo struct {
	ID         string // opaque platform-specific identifier
	Name       string
	IsInput    bool
	IsOutput   bool
	IsLoopback bool // monitor/loopback source mirroring an output
	IsDefault  bool
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// ByID resolves a device descriptor from a previously enumerated ID.
// Returns nil (meaning: system default) for an empty ID.
func ByID(ctx Context, id string) (*DeviceInfo, bool) {
	if id == "" {
		return nil, true
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, false
	}
	for i := range devices {
		if devices[i].ID == id {
			return &devices[i], true
		}
	}
	return nil, false
}
