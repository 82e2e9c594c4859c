// Package sim is a filesystem-backed radio: each advertiser keeps one record
// file in a shared "air" directory and scanners read them back, so holder and
// gate processes on one host can see each other without a radio.
package sim

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/railpass-blue/broadcast"
	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/util"
	"github.com/user/railpass-blue/wire/advertising"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const recordExt = ".adv"

// Radio advertises by writing a record file into the air directory
type Radio struct {
	mu       sync.Mutex
	airDir   string
	address  [6]byte
	active   bool
	failWith broadcast.FailureReason
}

// NewRadio creates a simulated radio with a random address
func NewRadio(airDir string) *Radio {
	id := uuid.New()
	var addr [6]byte
	copy(addr[:], id[10:16])
	return NewRadioWithAddress(airDir, addr)
}

// NewRadioWithAddress creates a simulated radio with a fixed address
func NewRadioWithAddress(airDir string, address [6]byte) *Radio {
	return &Radio{airDir: airDir, address: address}
}

// Address returns the radio address as AA:BB:CC:DD:EE:FF
func (r *Radio) Address() string {
	return FormatAddress(r.address)
}

// FailNextStart makes the next Advertise call fail with reason, once
func (r *Radio) FailNextStart(reason broadcast.FailureReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = reason
}

// Enable makes sure the air directory exists
func (r *Radio) Enable() error {
	if r.airDir == "" {
		return fmt.Errorf("no air directory configured")
	}
	return util.EnsureDir(r.airDir)
}

// Advertise puts adv on air until Stop
func (r *Radio) Advertise(ctx context.Context, adv *broadcast.Advertisement) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if reason := r.failWith; reason != broadcast.ReasonNone {
		r.failWith = broadcast.ReasonNone
		return &broadcast.StartError{Reason: reason}
	}
	if r.active {
		return &broadcast.StartError{Reason: broadcast.ReasonAlreadyStarted}
	}

	pduType := byte(advertising.PDUTypeAdvNonconnInd)
	if adv.Settings.Connectable {
		pduType = advertising.PDUTypeAdvInd
	}
	pdu := &advertising.AdvertisingPDU{PDUType: pduType, AdvA: r.address, AdvData: adv.Data}
	raw, err := pdu.Encode()
	if err != nil {
		return &broadcast.StartError{Reason: broadcast.ReasonDataTooLarge, Err: err}
	}

	record, err := structpb.NewStruct(map[string]interface{}{
		"address":      r.Address(),
		"pdu":          hex.EncodeToString(raw),
		"interval_ms":  adv.Settings.Interval().Milliseconds(),
		"tx_power_dbm": int(adv.Settings.TxPowerDbm()),
		"updated_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return &broadcast.StartError{Reason: broadcast.ReasonInternalError, Err: err}
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(record)
	if err != nil {
		return &broadcast.StartError{Reason: broadcast.ReasonInternalError, Err: err}
	}

	// Write to temp file first so scanners never see a partial record
	path := r.recordPath()
	if err := os.WriteFile(path+".tmp", data, 0644); err != nil {
		return &broadcast.StartError{Reason: broadcast.ReasonInternalError, Err: err}
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return &broadcast.StartError{Reason: broadcast.ReasonInternalError, Err: err}
	}

	r.active = true
	prefix := logger.Prefix(r.Address(), "sim-radio")
	logger.Trace(prefix, "on air: %s %d bytes", advertising.PDUTypeName(pduType), len(raw))
	logger.TraceJSON(prefix, "record", record)
	return nil
}

// Stop takes the record off air
func (r *Radio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return nil
	}
	r.active = false
	if err := os.Remove(r.recordPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove advertising record: %w", err)
	}
	return nil
}

// Active reports whether a record is on air
func (r *Radio) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Radio) recordPath() string {
	name := strings.ReplaceAll(r.Address(), ":", "") + recordExt
	return filepath.Join(r.airDir, name)
}

// FormatAddress renders a BLE address most-significant byte first
func FormatAddress(a [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}
