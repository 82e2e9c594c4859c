package sim

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/railpass-blue/broadcast"
	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/wire/advertising"
)

func TestRadioAdvertiseAndScan(t *testing.T) {
	air := filepath.Join(t.TempDir(), "air")
	radio := NewRadioWithAddress(air, [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01})
	if err := radio.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	adv, err := broadcast.BuildAdvertisement("8F3K2Q9Z", broadcast.PlacementManufacturerData, broadcast.DefaultSettings())
	if err != nil {
		t.Fatalf("BuildAdvertisement failed: %v", err)
	}
	if err := radio.Advertise(context.Background(), adv); err != nil {
		t.Fatalf("Advertise failed: %v", err)
	}

	sightings, err := NewScanner(air).Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(sightings) != 1 {
		t.Fatalf("Expected 1 sighting, got %d", len(sightings))
	}
	s := sightings[0]
	if s.Address != "AA:BB:CC:DD:EE:01" {
		t.Errorf("Unexpected address %s", s.Address)
	}
	if s.PDUType != advertising.PDUTypeAdvNonconnInd {
		t.Errorf("Expected non-connectable PDU, got %s", advertising.PDUTypeName(s.PDUType))
	}
	if s.TxPowerDbm != 1 {
		t.Errorf("Expected +1 dBm, got %d", s.TxPowerDbm)
	}
	identity, ok := broadcast.ExtractIdentity(s.Structures)
	if !ok || identity != "8F3K2Q9Z" {
		t.Errorf("Expected identity 8F3K2Q9Z on air, got %q (%v)", identity, ok)
	}

	if err := radio.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := radio.Stop(); err != nil {
		t.Fatalf("Second stop failed: %v", err)
	}
	sightings, _ = NewScanner(air).Scan()
	if len(sightings) != 0 {
		t.Errorf("Expected air to be empty after stop, got %d", len(sightings))
	}
}

func TestRadioAlreadyStarted(t *testing.T) {
	radio := NewRadio(t.TempDir())
	adv, _ := broadcast.BuildAdvertisement("ABC", nil, broadcast.DefaultSettings())

	if err := radio.Advertise(context.Background(), adv); err != nil {
		t.Fatalf("Advertise failed: %v", err)
	}
	err := radio.Advertise(context.Background(), adv)
	var startErr *broadcast.StartError
	if !errors.As(err, &startErr) || startErr.Reason != broadcast.ReasonAlreadyStarted {
		t.Fatalf("Expected already-started error, got %v", err)
	}
	radio.Stop()
}

func TestRadioInjectedFailureWithManager(t *testing.T) {
	radio := NewRadio(t.TempDir())
	radio.FailNextStart(broadcast.ReasonUnauthorized)
	m := broadcast.NewManager(radio)

	err := m.Start(context.Background(), "ABC")
	if !errs.Is(err, errs.CodeAuthorizationDenied) {
		t.Fatalf("Expected AUTHORIZATION_DENIED, got %v", err)
	}
	if radio.Active() {
		t.Error("Radio must not be on air after a failed start")
	}

	// Manual re-invocation succeeds once the fault is gone
	if err := m.Start(context.Background(), "ABC"); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}
	if !radio.Active() {
		t.Error("Expected radio on air after manual restart")
	}
	m.Stop()
	if radio.Active() {
		t.Error("Expected radio off air after stop")
	}
}

func TestManagerTimeoutTakesRecordOffAir(t *testing.T) {
	air := t.TempDir()
	radio := NewRadio(air)
	settings := broadcast.DefaultSettings()
	settings.Timeout = 20 * time.Millisecond
	m := broadcast.NewManager(radio, broadcast.WithSettings(settings))

	if err := m.Start(context.Background(), "ABC"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for (m.State() != broadcast.StateStopped || radio.Active()) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.State() != broadcast.StateStopped {
		t.Fatalf("Expected stopped after the timeout, got %s", m.State())
	}
	if radio.Active() {
		t.Error("Expected advertising to end after the timeout")
	}
	if sightings, _ := NewScanner(air).Scan(); len(sightings) != 0 {
		t.Errorf("Expected air to be empty, got %d", len(sightings))
	}

	if err := m.Start(context.Background(), "ABC"); err != nil {
		t.Fatalf("Start after timeout failed: %v", err)
	}
	m.Stop()
}

func TestScanPrefersAdvertisedTxPower(t *testing.T) {
	air := t.TempDir()
	radio := NewRadio(air)
	settings := broadcast.DefaultSettings()
	settings.TxPower = broadcast.TxPowerLow
	settings.IncludeTxPower = true
	adv, err := broadcast.BuildAdvertisement("ABC", nil, settings)
	if err != nil {
		t.Fatalf("BuildAdvertisement failed: %v", err)
	}
	if err := radio.Advertise(context.Background(), adv); err != nil {
		t.Fatalf("Advertise failed: %v", err)
	}
	defer radio.Stop()

	sightings, err := NewScanner(air).Scan()
	if err != nil || len(sightings) != 1 {
		t.Fatalf("Expected one sighting, got %d (%v)", len(sightings), err)
	}
	if _, ok := advertising.GetTxPowerLevel(sightings[0].Structures); !ok {
		t.Error("Expected a Tx Power Level record on air")
	}
	if sightings[0].TxPowerDbm != -15 {
		t.Errorf("Expected -15 dBm, got %d", sightings[0].TxPowerDbm)
	}
}

func TestRadioCancelledContext(t *testing.T) {
	radio := NewRadio(t.TempDir())
	adv, _ := broadcast.BuildAdvertisement("ABC", nil, broadcast.DefaultSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := radio.Advertise(ctx, adv); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestWatchStopsWithContext(t *testing.T) {
	air := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan int, 10)
	done := make(chan struct{})

	go func() {
		NewScanner(air).Watch(ctx, 5*time.Millisecond, func(s []Sighting) { calls <- len(s) })
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for first scan")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
