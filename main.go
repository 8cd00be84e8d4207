package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"time"

	"minute/audio"
	"minute/channel"
	"minute/config"
	"minute/doctor"
	"minute/log"
	"minute/shutdown"
)

var version = "dev"

func main() {
	run()
}

func run() {
	configFlag := flag.String("config", "", "Path to YAML config file")
	endpointFlag := flag.String("endpoint", "", "Backend websocket endpoint (overrides config)")
	deviceFlag := flag.String("device", "", "Capture device ID (otherwise uses system default)")
	setupFlag := flag.Bool("setup", false, "Select capture device interactively")
	formatFlag := flag.String("format", "", "Recording format: wav or flac (overrides config)")
	dirFlag := flag.String("dir", "", "Recordings directory (overrides config)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("minute %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *endpointFlag != "" {
		cfg.Channel.Endpoint = *endpointFlag
	}
	if *deviceFlag != "" {
		cfg.Recording.Device = *deviceFlag
	}
	if *formatFlag != "" {
		cfg.Recording.Format = *formatFlag
	}
	if *dirFlag != "" {
		cfg.Recording.Dir = *dirFlag
	}

	logDir := *logPathFlag
	if logDir == "" {
		logDir = cfg.LogDir
	}
	logPath, err := log.ResolveDir(logDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg.Channel.Endpoint, cfg.Recording.Dir))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	if *setupFlag {
		dev, err := audio.SelectDevice(audioCtx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		} else if dev != nil {
			cfg.Recording.Device = dev.ID
		}
	}

	ch := channel.New(cfg.Channel.Endpoint, channel.Options{
		RetryBudget:     cfg.Channel.RetryBudget,
		BaseDelay:       time.Duration(cfg.Channel.BaseDelayMS) * time.Millisecond,
		ConnectThrottle: time.Duration(cfg.Channel.ConnectThrottleMS) * time.Millisecond,
		DialTimeout:     time.Duration(cfg.Channel.DialTimeoutMS) * time.Millisecond,
		OnGaveUp: func(err error) {
			fmt.Fprintf(os.Stderr, "Error: backend unreachable: %v\n", err)
		},
	})

	bridge := NewBridge(ch, audioCtx, cfg.Recording)
	defer bridge.Close()

	ch.Connect()
	log.Infof("minute %s connecting to %s", version, cfg.Channel.Endpoint)

	watchStop := make(chan struct{})
	go watchDevices(audioCtx, bridge, watchStop)

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	<-sigChan
	close(watchStop)
	log.Info("shutting down")
}

// watchDevices polls for hotplug changes. When the preferred device vanishes
// the next session falls back to the system default; when it comes back it
// becomes the preferred device again.
func watchDevices(ctx audio.Context, b *Bridge, stop <-chan struct{}) {
	preferred := b.DefaultDevice()
	var last []string
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		devices, err := ctx.Devices()
		if err != nil {
			continue
		}
		ids := make([]string, len(devices))
		for i := range devices {
			ids[i] = devices[i].ID
		}
		if slices.Equal(last, ids) {
			continue
		}
		last = ids

		current := b.DefaultDevice()
		if current != "" && !slices.Contains(ids, current) {
			log.Info("device_disconnected: " + current)
			b.SetDefaultDevice("")
		} else if current == "" && preferred != "" && slices.Contains(ids, preferred) {
			log.Info("device_reconnected: " + preferred)
			b.SetDefaultDevice(preferred)
		}
	}
}
