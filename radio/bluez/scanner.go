package bluez

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/user/railpass-blue/broadcast"
	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/wire/advertising"
	"tinygo.org/x/bluetooth"
)

// Sighting is one scan result with its AD records rebuilt for decoding
type Sighting struct {
	Address    string
	RSSI       int
	LocalName  string
	Structures []advertising.ADStructure
	SeenAt     time.Time
}

// Scanner reports every advertisement the adapter hears
type Scanner struct {
	adapter *bluetooth.Adapter
}

// NewScanner wraps the default adapter
func NewScanner() *Scanner {
	return &Scanner{adapter: bluetooth.DefaultAdapter}
}

// Run scans until ctx is done, calling fn for each result from the adapter's
// scan goroutine
func (s *Scanner) Run(ctx context.Context, fn func(Sighting)) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w (try running with sudo or setcap cap_net_admin+ep)", err)
	}

	go func() {
		<-ctx.Done()
		if err := s.adapter.StopScan(); err != nil {
			logger.Debug("bluez-scanner", "stop scan: %v", err)
		}
	}()

	err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		fn(toSighting(result))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func toSighting(result bluetooth.ScanResult) Sighting {
	var structures []advertising.ADStructure
	for _, md := range result.ManufacturerData() {
		structures = append(structures, advertising.NewManufacturerSpecificDataAD(md.CompanyID, md.Data))
	}
	for _, sd := range result.ServiceData() {
		key, err := uuid.Parse(sd.UUID.String())
		if err != nil {
			continue
		}
		structures = append(structures, broadcast.ServiceData{UUID: key}.Record(sd.Data))
	}

	return Sighting{
		Address:    result.Address.String(),
		RSSI:       int(result.RSSI),
		LocalName:  result.LocalName(),
		Structures: structures,
		SeenAt:     time.Now(),
	}
}
