package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/railpass-blue/account"
	"github.com/user/railpass-blue/config"
	"github.com/user/railpass-blue/gate"
	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/radio/bluez"
	"github.com/user/railpass-blue/radio/sim"
)

type console struct{}

func (console) OnEnter(p gate.Presence) {
	fmt.Printf("🚶 %s entered (%d dBm)\n", p.Identity, p.RSSI)
}

func (console) OnExit(p gate.Presence, absent time.Duration) {
	fmt.Printf("🚪 %s exited after %v unheard\n", p.Identity, absent.Round(time.Second))
}

func main() {
	backendURL := flag.String("backend", "", "Account service base URL")
	journeys := flag.Bool("journeys", true, "Start and end journeys on the account service")
	dataDir := flag.String("data", "", "Data directory shared with the simulated holders")
	radioName := flag.String("radio", "", "Radio backend: sim or bluez")
	threshold := flag.Int("rssi", gate.DefaultRSSIThreshold, "Minimum RSSI (dBm) for a holder to count as present")
	exitDelay := flag.Duration("exit-delay", gate.DefaultExitDelay, "Time unheard before a holder exits")
	scanEvery := flag.Duration("scan-interval", 2*time.Second, "Simulated scan period")
	logLevel := flag.String("log", "", "Log level")
	flag.Parse()

	cfg, err := config.Load(map[string]any{
		"backend_url": *backendURL,
		"data_dir":    *dataDir,
		"radio":       *radioName,
		"log_level":   *logLevel,
	})
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var listener gate.Listener = console{}
	if *journeys {
		client := account.NewClient(cfg.BackendURL, account.WithTimeout(cfg.RequestTimeout))
		listener = gate.NewJourneys(ctx, client, listener)
	}
	tracker := gate.NewTracker(
		gate.WithThreshold(*threshold),
		gate.WithExitDelay(*exitDelay),
		gate.WithListener(listener),
	)

	fmt.Printf("🔍 scanning (%s), RSSI ≥ %d dBm, exit after %v\n", cfg.Radio, *threshold, *exitDelay)

	// Exits are only noticed on sweeps, so sweep independently of sightings
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				tracker.Sweep(now)
			}
		}
	}()

	switch cfg.Radio {
	case config.RadioBlueZ:
		err = bluez.NewScanner().Run(ctx, func(s bluez.Sighting) {
			if d, ok := gate.Detect(s.Address, s.RSSI, s.Structures, s.SeenAt); ok {
				tracker.Observe(d)
			}
		})
	default:
		sim.NewScanner(cfg.AirDir()).Watch(ctx, *scanEvery, func(sightings []sim.Sighting) {
			for _, s := range sightings {
				if d, ok := gate.Detect(s.Address, s.RSSI, s.Structures, time.Now()); ok {
					tracker.Observe(d)
				}
			}
		})
	}
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	fmt.Printf("\n🛑 scanner stopped, %d holder(s) in range\n", len(tracker.Present()))
}
