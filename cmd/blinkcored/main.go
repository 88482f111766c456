// Package main is the entry point for blinkcored, the real-time audio
// analysis daemon driving a wearable LED-effects device: PDM capture,
// adaptive front-end, spectral analysis, onset detection ensemble, fusion,
// rhythm tracking, and telemetry push, wired together by internal/pipeline
// and served over internal/ipc's Unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/austinkregel/local-media/musicd/internal/capture"
	"github.com/austinkregel/local-media/musicd/internal/config"
	"github.com/austinkregel/local-media/musicd/internal/ipc"
	"github.com/austinkregel/local-media/musicd/internal/params"
	"github.com/austinkregel/local-media/musicd/internal/pipeline"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config holds daemon configuration.
type Config struct {
	SocketPath string
	ConfigDir  string
	DevicePath string
	Verbose    bool
}

func main() {
	cfg := parseFlags()

	if cfg.Verbose {
		log.Printf("blinkcored version %s starting...", Version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.SocketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	flag.StringVar(&cfg.ConfigDir, "config", "", "Configuration directory (default: ~/.config/blinkcored)")
	flag.StringVar(&cfg.DevicePath, "device", "/dev/pdm0", "PDM capture device path")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	if cfg.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		cfg.ConfigDir = homeDir + "/.config/blinkcored"
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = fmt.Sprintf("/tmp/blinkcored-%d.sock", os.Getuid())
	}

	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configMgr := config.NewManager(cfg.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	initial := configMgr.Params()
	p, err := pipeline.New(initial)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer p.Close()

	dev, err := capture.OpenDevice(cfg.DevicePath)
	if err != nil {
		log.Printf("[CAPTURE] Warning: failed to open PDM device %s: %v", cfg.DevicePath, err)
		log.Printf("[CAPTURE] Continuing without a live capture source; telemetry will idle")
	} else {
		defer dev.Close()
		go feedCapture(ctx, p, dev)
	}

	server, err := ipc.NewServer(cfg.SocketPath, configMgr, p)
	if err != nil {
		return fmt.Errorf("failed to initialize IPC server: %w", err)
	}

	go func() {
		if err := p.Run(ctx); err != nil {
			log.Printf("[PIPELINE] stopped: %v", err)
		}
	}()

	log.Printf("Starting IPC server on %s", cfg.SocketPath)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}

	return nil
}

// feedCapture reads raw PDM samples from dev and pushes them into the
// pipeline's capture ring until ctx is cancelled or the device read fails.
func feedCapture(ctx context.Context, p *pipeline.Pipeline, dev capture.Device) {
	buf := make([]byte, params.HopSize*2)
	samples := make([]int16, params.HopSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := dev.Read(buf)
		if err != nil {
			log.Printf("[CAPTURE] device read error: %v", err)
			return
		}
		if n < len(buf) {
			continue
		}

		for i := range samples {
			samples[i] = int16(uint16(buf[2*i]) | uint16(buf[2*i+1])<<8)
		}
		p.Push(samples)

		// Apply the front-end's latest AGC decision here, between reads, so
		// it lands at the next window boundary and never mid-window
		// (spec.md §4.2 step 4).
		if err := dev.SetGain(p.GainIndex()); err != nil {
			log.Printf("[CAPTURE] set gain: %v", err)
		}
	}
}
