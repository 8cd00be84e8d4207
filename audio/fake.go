package audio

import (
	"fmt"
	"sync"
)

// FakeContext is an in-memory Context for tests. Devices are whatever the
// test declares, and individual device IDs can be marked as failing to
// exercise the unavailable-device paths.
type FakeContext struct {
	mu       sync.Mutex
	devices  []DeviceInfo
	failIDs  map[string]bool
	captures []*FakeCapture
	closed   bool
}

func NewFakeContext(devices ...DeviceInfo) *FakeContext {
	return &FakeContext{
		devices: devices,
		failIDs: make(map[string]bool),
	}
}

// FailDevice makes NewCapture fail for the given ID. An empty ID fails the
// system-default path.
func (f *FakeContext) FailDevice(id string) {
	f.mu.Lock()
	f.failIDs[id] = true
	f.mu.Unlock()
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DeviceInfo, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *FakeContext) SetDevices(devices []DeviceInfo) {
	f.mu.Lock()
	f.devices = devices
	f.mu.Unlock()
}

func (f *FakeContext) NewCapture(device *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := ""
	name := "system default"
	if device != nil {
		id = device.ID
		name = device.Name
	}
	if f.failIDs[id] {
		return nil, fmt.Errorf("fake device %q unavailable", name)
	}

	c := &FakeCapture{name: name}
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *FakeContext) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Captures returns every capture device handed out so far, in order.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeCapture, len(f.captures))
	copy(out, f.captures)
	return out
}

// FakeCapture delivers PCM only when the test pushes it, so tests control
// exactly how many callbacks fire and when.
type FakeCapture struct {
	name string

	mu      sync.Mutex
	cb      DataCallback
	started bool
	stopped bool
	closed  bool
}

func (c *FakeCapture) Start() error {
	c.mu.Lock()
	c.started = true
	c.stopped = false
	c.mu.Unlock()
	return nil
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

func (c *FakeCapture) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopped = true
	c.mu.Unlock()
}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

func (c *FakeCapture) DeviceName() string { return c.name }

// Push feeds one callback's worth of 16-bit mono PCM to the consumer.
// Pushes after Stop are delivered too: the platform gives no ordering
// guarantee between a stop and in-flight media callbacks, and consumers
// must drop late data themselves.
func (c *FakeCapture) Push(data []byte) {
	c.mu.Lock()
	cb := c.cb
	started := c.started
	c.mu.Unlock()
	if cb != nil && started {
		cb(data, uint32(len(data)/2))
	}
}

func (c *FakeCapture) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *FakeCapture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
