// Command kasad discovers, tracks, and controls a fleet of TP-Link
// Kasa smart plugs and switches on the local network, exposing a
// uniform HTTP control surface that hides the device-specific wire
// protocol — see the package docs under internal/kasa for the
// component design this entry point wires together.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/homekasa/kasad/internal/api"
	"github.com/homekasa/kasad/internal/infrastructure/config"
	"github.com/homekasa/kasad/internal/infrastructure/filestore"
	"github.com/homekasa/kasad/internal/infrastructure/logging"
	"github.com/homekasa/kasad/internal/kasa/control"
	"github.com/homekasa/kasad/internal/kasa/device"
	"github.com/homekasa/kasad/internal/kasa/kasaconf"
	"github.com/homekasa/kasad/internal/kasa/manager"
	"github.com/homekasa/kasad/internal/kasa/transport"
)

// Version information, set at build time via ldflags, e.g.:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when KASAD_CONFIG is unset.
const defaultConfigPath = "configs/kasad.yaml"

func main() {
	fmt.Printf("kasad %s (%s) built %s\n", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath resolves the configuration file path: the KASAD_CONFIG
// environment variable if set, else defaultConfigPath.
func getConfigPath() string {
	if v := os.Getenv("KASAD_CONFIG"); v != "" {
		return v
	}
	return defaultConfigPath
}

// run loads configuration, wires the transport, device manager,
// configuration bridge, and HTTP control surface together, then blocks
// until ctx is cancelled. Separated from main for testability.
func run(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("kasad starting", "version", version, "commit", commit)

	udp, err := transport.Listen(cfg.UDP.ListenAddr, logger.With("component", "transport"))
	if err != nil {
		// Socket creation failure is the one unrecoverable error.
		return fmt.Errorf("opening UDP transport: %w", err)
	}
	defer udp.Close()

	table := device.NewTable(0)

	mgr := manager.New(manager.Options{
		Table:     table,
		Transport: udp,
		Logger:    logger.With("component", "manager"),
		Timings: manager.Timings{
			TickInterval:           cfg.Discovery.TickInterval,
			BroadcastSweepInterval: cfg.Discovery.BroadcastSweepInterval,
			ProbeInterval:          cfg.Discovery.ProbeInterval,
			ProbeStaleAfter:        cfg.Discovery.ProbeStaleAfter,
			SilenceAfter:           cfg.Discovery.SilenceAfter,
			CommandTimeout:         cfg.Discovery.CommandTimeout,
		},
	})

	udp.SetHandler(func(msg transport.Message) {
		mgr.HandleDatagram(msg.Payload, msg.Addr)
	})

	persister := filestore.New(cfg.Kasaconf.Path)
	bridge := kasaconf.New(kasaconf.Options{
		Persister:  persister,
		Manager:    mgr,
		DevicePort: cfg.UDP.DevicePort,
		Logger:     logger.With("component", "kasaconf"),
	})

	if err := bridge.Refresh(ctx); err != nil {
		return fmt.Errorf("loading device configuration: %w", err)
	}

	points := control.New(mgr)

	apiServer, err := api.New(api.Deps{
		Config:       cfg.API,
		Logger:       logger.With("component", "api"),
		Control:      points,
		ConfigBridge: bridge,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	mgr.Run(ctx)
	defer mgr.Stop()

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer apiServer.Close() //nolint:errcheck // best-effort on shutdown path

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return saveLoop(groupCtx, bridge, cfg.Kasaconf.SaveCheckInterval, logger)
	})

	<-ctx.Done()
	logger.Info("kasad shutting down")

	return group.Wait()
}

// saveLoop polls the configuration bridge's DeviceListChanged flag at
// interval and persists the live configuration when autodiscovery has
// made it diverge from what was last saved.
func saveLoop(ctx context.Context, bridge *kasaconf.Bridge, interval time.Duration, logger *logging.Logger) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			saved, err := bridge.CheckAndSave(ctx)
			if err != nil {
				logger.Warn("failed to persist device configuration", "error", err)
				continue
			}
			if saved {
				logger.Info("device configuration persisted", "category", "config")
			}
		}
	}
}
