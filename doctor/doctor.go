package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"minute/audio"
	"minute/channel"
	"minute/encoder"
)

// Run executes the diagnostic checks and returns an exit code (0=all pass,
// 1=any fail).
func Run(endpoint, recordingsDir string) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("minute doctor - system diagnostics")
	fmt.Println("==================================")

	allPass := checkMicrophone()
	if !checkRecordingsDir(recordingsDir) {
		allPass = false
	}
	if !checkBackend(endpoint) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkMicrophone() bool {
	fmt.Println()
	fmt.Println("[1/3] Microphone capture")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	inputs := 0
	for _, d := range devices {
		if d.IsInput && !d.IsLoopback {
			inputs++
		}
	}
	if inputs == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}
	fmt.Printf("  %d capture device(s) found\n", inputs)

	capture, err := ctx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		fmt.Printf("  FAIL: cannot open default device: %v\n", err)
		return false
	}
	defer capture.Close()

	var mu sync.Mutex
	captured := 0
	capture.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		captured += len(data)
		mu.Unlock()
	})
	if err := capture.Start(); err != nil {
		fmt.Printf("  FAIL: cannot start capture: %v\n", err)
		return false
	}

	fmt.Print("  Recording 2 seconds")
	for i := 0; i < 4; i++ {
		time.Sleep(500 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" done")
	capture.Stop()
	capture.ClearCallback()

	mu.Lock()
	got := captured
	mu.Unlock()
	if got == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	fmt.Printf("  PASS: captured %.1f KB from %s\n", float64(got)/1024, capture.DeviceName())
	return true
}

func checkRecordingsDir(dir string) bool {
	fmt.Println()
	fmt.Println("[2/3] Recordings directory")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Printf("  FAIL: cannot create %s: %v\n", dir, err)
		return false
	}
	probe := filepath.Join(dir, ".minute-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		fmt.Printf("  FAIL: cannot write to %s: %v\n", dir, err)
		return false
	}
	os.Remove(probe)
	fmt.Printf("  PASS: %s is writable\n", dir)
	return true
}

func checkBackend(endpoint string) bool {
	fmt.Println()
	fmt.Println("[3/3] Backend endpoint")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sock, err := channel.DialWebsocket(ctx, endpoint)
	if err != nil {
		fmt.Printf("  FAIL: cannot reach %s: %v\n", endpoint, err)
		return false
	}
	sock.Close()
	fmt.Printf("  PASS: connected to %s\n", endpoint)
	return true
}
