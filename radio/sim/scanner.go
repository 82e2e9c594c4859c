package sim

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/wire/advertising"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultRSSI is the signal strength reported for every simulated sighting
const DefaultRSSI = -45

// Sighting is one advertisement seen on air
type Sighting struct {
	Address    string
	PDUType    byte
	RSSI       int
	TxPowerDbm int
	Structures []advertising.ADStructure
	UpdatedAt  time.Time
}

// Scanner reads advertising records from the air directory
type Scanner struct {
	airDir string
}

// NewScanner creates a scanner over airDir
func NewScanner(airDir string) *Scanner {
	return &Scanner{airDir: airDir}
}

// Scan returns every advertisement currently on air, ordered by address.
// Unreadable records are skipped.
func (s *Scanner) Scan() ([]Sighting, error) {
	matches, err := filepath.Glob(filepath.Join(s.airDir, "*"+recordExt))
	if err != nil {
		return nil, err
	}

	sightings := make([]Sighting, 0, len(matches))
	for _, path := range matches {
		sighting, err := readRecord(path)
		if err != nil {
			logger.Trace("sim-scanner", "skipping %s: %v", filepath.Base(path), err)
			continue
		}
		sightings = append(sightings, sighting)
	}

	sort.Slice(sightings, func(i, j int) bool { return sightings[i].Address < sightings[j].Address })
	return sightings, nil
}

// Watch scans every interval until ctx is done
func (s *Scanner) Watch(ctx context.Context, interval time.Duration, fn func([]Sighting)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sightings, err := s.Scan()
		if err != nil {
			logger.Warn("sim-scanner", "scan failed: %v", err)
		} else {
			fn(sightings)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func readRecord(path string) (Sighting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sighting{}, err
	}

	var record structpb.Struct
	if err := protojson.Unmarshal(data, &record); err != nil {
		return Sighting{}, fmt.Errorf("failed to parse record: %w", err)
	}
	fields := record.GetFields()

	raw, err := hex.DecodeString(fields["pdu"].GetStringValue())
	if err != nil {
		return Sighting{}, fmt.Errorf("bad pdu hex: %w", err)
	}
	pdu, err := advertising.DecodeAdvertisingPDU(raw)
	if err != nil {
		return Sighting{}, err
	}
	structures, err := advertising.DecodeADStructures(pdu.AdvData)
	if err != nil {
		return Sighting{}, err
	}

	// prefer the advertised level; the record carries the configured one
	txPower := int(fields["tx_power_dbm"].GetNumberValue())
	if level, ok := advertising.GetTxPowerLevel(structures); ok {
		txPower = int(level)
	}

	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"].GetStringValue())
	return Sighting{
		Address:    FormatAddress(pdu.AdvA),
		PDUType:    pdu.PDUType,
		RSSI:       DefaultRSSI,
		TxPowerDbm: txPower,
		Structures: structures,
		UpdatedAt:  updatedAt,
	}, nil
}
