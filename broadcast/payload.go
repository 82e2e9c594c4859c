package broadcast

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/wire/advertising"
)

// PayloadPrefix tags every identity record on air
const PayloadPrefix = "RAIL_USER::"

// Record keys shared by every device of the system
var (
	// ServiceUUID keys the service-data placement. It lives in the Bluetooth
	// base UUID range so it travels as its 16-bit alias 0xFFF0.
	ServiceUUID = uuid.MustParse("0000FFF0-0000-1000-8000-00805F9B34FB")

	// CompanyID keys the manufacturer-data placement
	CompanyID = advertising.CompanyIDInternal
)

// recordOverhead is the AD header plus the 2-byte key of either placement
const recordOverhead = 4

// MaxIdentityLen is the largest identity that fits a legacy advertisement
// after the record header, key and prefix
const MaxIdentityLen = advertising.MaxAdvertisingDataLen - recordOverhead - len(PayloadPrefix)

var bluetoothBaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// Placement is where the payload sits inside the advertisement
type Placement interface {
	Name() string
	Record(payload []byte) advertising.ADStructure
	Extract(structures []advertising.ADStructure) ([]byte, bool)
}

// ManufacturerData places the payload in vendor-scoped data keyed by a company code
type ManufacturerData struct {
	CompanyID uint16
}

func (p ManufacturerData) Name() string { return "manufacturer" }

func (p ManufacturerData) Record(payload []byte) advertising.ADStructure {
	return advertising.NewManufacturerSpecificDataAD(p.CompanyID, payload)
}

func (p ManufacturerData) Extract(structures []advertising.ADStructure) ([]byte, bool) {
	company, data, found := advertising.GetManufacturerData(structures)
	if !found || company != p.CompanyID {
		return nil, false
	}
	return data, true
}

// ServiceData places the payload in service-scoped data keyed by a service UUID
type ServiceData struct {
	UUID uuid.UUID
}

func (p ServiceData) Name() string { return "service" }

// alias16 returns the 16-bit alias of a Bluetooth base UUID
func (p ServiceData) alias16() (uint16, bool) {
	u := p.UUID
	base := bluetoothBaseUUID
	if u[0] != 0 || u[1] != 0 || !bytes.Equal(u[4:], base[4:]) {
		return 0, false
	}
	return uint16(u[2])<<8 | uint16(u[3]), true
}

func (p ServiceData) Record(payload []byte) advertising.ADStructure {
	if short, ok := p.alias16(); ok {
		return advertising.NewServiceData16AD(short, payload)
	}
	return advertising.NewServiceData128AD(p.UUID, payload)
}

func (p ServiceData) Extract(structures []advertising.ADStructure) ([]byte, bool) {
	short, isShort := p.alias16()
	for _, sd := range advertising.GetServiceData(structures) {
		if isShort && !sd.Is128 && sd.UUID16 == short {
			return sd.Data, true
		}
		if sd.Is128 && uuid.UUID(sd.UUID128) == p.UUID {
			return sd.Data, true
		}
	}
	return nil, false
}

// Default placements
var (
	PlacementManufacturerData Placement = ManufacturerData{CompanyID: CompanyID}
	PlacementServiceData      Placement = ServiceData{UUID: ServiceUUID}
)

// PlacementByName resolves a configured placement name
func PlacementByName(name string) (Placement, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "manufacturer", "manufacturer_data", "vendor":
		return PlacementManufacturerData, nil
	case "service", "service_data":
		return PlacementServiceData, nil
	}
	return nil, fmt.Errorf("unknown placement %q (want manufacturer or service)", name)
}

// EncodePayload returns the bytes broadcast for identity. Same identity, same bytes.
func EncodePayload(identity string) ([]byte, error) {
	if identity == "" {
		return nil, errs.NoIdentity("broadcast")
	}
	if len(identity) > MaxIdentityLen {
		return nil, errs.EncodingTooLarge(len(PayloadPrefix)+len(identity), len(PayloadPrefix)+MaxIdentityLen)
	}
	return []byte(PayloadPrefix + identity), nil
}

// ParseIdentity extracts an identity from a received payload. Service data must
// start with the prefix; vendor data may carry it anywhere.
func ParseIdentity(payload []byte) (string, bool) {
	s := string(payload)
	idx := strings.Index(s, PayloadPrefix)
	if idx < 0 {
		return "", false
	}
	identity := s[idx+len(PayloadPrefix):]
	if identity == "" {
		return "", false
	}
	return identity, true
}

// ExtractIdentity looks for an identity record in decoded advertising data,
// trying the service-data placement first and vendor data second
func ExtractIdentity(structures []advertising.ADStructure) (string, bool) {
	if data, ok := PlacementServiceData.Extract(structures); ok && bytes.HasPrefix(data, []byte(PayloadPrefix)) {
		return ParseIdentity(data)
	}
	if data, ok := PlacementManufacturerData.Extract(structures); ok {
		return ParseIdentity(data)
	}
	return "", false
}
