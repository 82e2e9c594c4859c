package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/railpass-blue/account"
	"github.com/user/railpass-blue/broadcast"
	"github.com/user/railpass-blue/config"
	"github.com/user/railpass-blue/identity"
	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/radio/bluez"
	"github.com/user/railpass-blue/radio/sim"
	"github.com/user/railpass-blue/railpass"
	"github.com/user/railpass-blue/reconcile"
)

// console prints what the holder would see on screen
type console struct{}

func (console) OnStateUpdate(s reconcile.Snapshot) {
	status := "idle"
	if s.ActivityFlag {
		status = "journey active"
	}
	fmt.Printf("💳 balance %.2f (%s)\n", s.Balance, status)
}

func (console) OnBalanceDecreased(e reconcile.Event) {
	fmt.Printf("🎫 fare deducted: %.2f\n", e.Delta)
}

func (console) OnFetchError(err error) {}

func (console) OnActivityChanged(active bool, s reconcile.Snapshot) {
	if active {
		fmt.Println("🚆 journey started")
	} else {
		fmt.Println("🚉 journey ended")
	}
}

func (console) OnStartSuccess(s broadcast.Session) {
	fmt.Printf("📡 broadcasting %q via %s data\n", s.Payload, s.Placement)
}

func (console) OnStartFailure(f broadcast.Failure) {
	fmt.Printf("❌ broadcast failed: %s\n", f.Reason)
}

func main() {
	backend := flag.String("backend", "", "Account service base URL")
	dataDir := flag.String("data", "", "Data directory (identity file, simulated air)")
	radioName := flag.String("radio", "", "Radio backend: sim or bluez")
	placement := flag.String("placement", "", "Payload placement: manufacturer or service")
	interval := flag.Duration("interval", 0, "Balance poll interval")
	logLevel := flag.String("log", "", "Log level: TRACE, DEBUG, INFO, WARN, ERROR")
	addFunds := flag.Bool("add-funds", false, "Add funds once after startup")
	flag.Parse()

	cfg, err := config.Load(map[string]any{
		"backend_url":   *backend,
		"data_dir":      *dataDir,
		"radio":         *radioName,
		"placement":     *placement,
		"poll_interval": *interval,
		"log_level":     *logLevel,
	})
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.SetLevel(cfg.Level())
	logger.SetTimestamps(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := account.NewClient(cfg.BackendURL, account.WithTimeout(cfg.RequestTimeout))
	rec, err := identity.NewProvisioner(identity.NewFileStore(cfg.DataDir), client).Provision(ctx)
	if err != nil {
		// No identity: neither component may start
		log.Fatalf("Registration failed, run again to retry: %v", err)
	}
	fmt.Printf("🪪 identity %s\n", rec.Identity)

	pl, _ := broadcast.PlacementByName(cfg.Placement)
	var radio broadcast.Radio
	switch cfg.Radio {
	case config.RadioBlueZ:
		radio = bluez.NewRadio()
	default:
		radio = sim.NewRadio(cfg.AirDir())
	}

	// The registration balance seeds every run, so fares charged while the app
	// was closed surface as one deduction on the first fetch.
	ui := console{}
	core := railpass.New(
		broadcast.NewManager(radio, broadcast.WithPlacement(pl), broadcast.WithCallback(ui)),
		reconcile.NewPoller(client,
			reconcile.WithInterval(cfg.PollInterval),
			reconcile.WithListener(ui),
			reconcile.WithInitialSnapshot(reconcile.Snapshot{Balance: rec.InitialBalance, FetchedAt: rec.RegisteredAt})),
	)
	defer core.Close()

	// Broadcast failures are terminal for the session but polling still runs
	if err := core.StartBroadcast(ctx, rec.Identity); err != nil {
		logger.Error(logger.Prefix(rec.Identity, "railpass"), "broadcast not started: %v", err)
	}
	if err := core.StartReconciliation(rec.Identity); err != nil {
		log.Fatalf("Failed to start reconciliation: %v", err)
	}

	if *addFunds {
		if snap, err := core.ForceUpdate(ctx); err != nil {
			fmt.Printf("❌ add funds failed: %v\n", err)
		} else {
			fmt.Printf("💰 funds added, balance %.2f\n", snap.Balance)
		}
	}

	<-ctx.Done()
	fmt.Println("\n🛑 stopping")
}
