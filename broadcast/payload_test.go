package broadcast

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/wire/advertising"
)

func TestEncodePayloadIsDeterministic(t *testing.T) {
	first, err := EncodePayload("8F3K2Q9Z")
	if err != nil {
		t.Fatalf("EncodePayload failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := EncodePayload("8F3K2Q9Z")
		if err != nil {
			t.Fatalf("EncodePayload failed: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Encoding changed between calls: %q vs %q", first, again)
		}
	}
	if string(first) != "RAIL_USER::8F3K2Q9Z" {
		t.Errorf("Unexpected payload %q", first)
	}
}

func TestEncodePayloadBudget(t *testing.T) {
	if MaxIdentityLen != 16 {
		t.Fatalf("Expected identity budget of 16 bytes, got %d", MaxIdentityLen)
	}

	fits := strings.Repeat("A", MaxIdentityLen)
	if _, err := EncodePayload(fits); err != nil {
		t.Errorf("Identity at the budget should encode, got %v", err)
	}

	_, err := EncodePayload(fits + "B")
	if !errs.Is(err, errs.CodeEncodingTooLarge) {
		t.Errorf("Expected ENCODING_TOO_LARGE, got %v", err)
	}

	// Registration service identities are uuid4 strings: too long to broadcast
	_, err = EncodePayload(uuid.NewString())
	if !errs.Is(err, errs.CodeEncodingTooLarge) {
		t.Errorf("Expected ENCODING_TOO_LARGE for a uuid identity, got %v", err)
	}

	if _, err := EncodePayload(""); !errs.Is(err, errs.CodeNoIdentity) {
		t.Errorf("Expected NO_IDENTITY for empty identity, got %v", err)
	}
}

func TestPlacementsFitAtBudget(t *testing.T) {
	identity := strings.Repeat("Z", MaxIdentityLen)
	for _, p := range []Placement{PlacementManufacturerData, PlacementServiceData} {
		adv, err := BuildAdvertisement(identity, p, DefaultSettings())
		if err != nil {
			t.Fatalf("%s: BuildAdvertisement failed: %v", p.Name(), err)
		}
		if len(adv.Data) != advertising.MaxAdvertisingDataLen {
			t.Errorf("%s: expected a full 31-byte advertisement, got %d", p.Name(), len(adv.Data))
		}
	}
}

func TestServiceDataUsesShortAlias(t *testing.T) {
	adv, err := BuildAdvertisement("ABC", PlacementServiceData, DefaultSettings())
	if err != nil {
		t.Fatalf("BuildAdvertisement failed: %v", err)
	}
	want := append([]byte{byte(1 + 2 + len("RAIL_USER::ABC")), advertising.ADTypeServiceData16Bit, 0xF0, 0xFF}, []byte("RAIL_USER::ABC")...)
	if !bytes.Equal(adv.Data, want) {
		t.Errorf("Unexpected advertising data\n got % X\nwant % X", adv.Data, want)
	}
}

func TestServiceDataNonBaseUUID(t *testing.T) {
	custom := ServiceData{UUID: uuid.MustParse("6E400001-B5A3-F393-E0A9-E50E24DCCA9E")}
	record := custom.Record([]byte("RAIL_USER::X"))
	if record.Type != advertising.ADTypeServiceData128Bit {
		t.Fatalf("Expected 128-bit service data for a custom UUID, got %s", advertising.ADTypeName(record.Type))
	}
	data, ok := custom.Extract([]advertising.ADStructure{record})
	if !ok || string(data) != "RAIL_USER::X" {
		t.Errorf("Expected to extract payload back, got %q (%v)", data, ok)
	}
}

func TestTxPowerReducesBudget(t *testing.T) {
	settings := DefaultSettings()
	settings.IncludeTxPower = true

	_, err := BuildAdvertisement(strings.Repeat("A", MaxIdentityLen), PlacementManufacturerData, settings)
	if !errs.Is(err, errs.CodeEncodingTooLarge) {
		t.Fatalf("Expected ENCODING_TOO_LARGE with tx power included, got %v", err)
	}

	adv, err := BuildAdvertisement("SHORT", PlacementManufacturerData, settings)
	if err != nil {
		t.Fatalf("BuildAdvertisement failed: %v", err)
	}
	level, ok := advertising.GetTxPowerLevel(adv.Structures)
	if !ok || level != 1 {
		t.Errorf("Expected +1 dBm tx power record, got %d (%v)", level, ok)
	}
}

func TestExtractIdentityBothPlacements(t *testing.T) {
	for _, p := range []Placement{PlacementManufacturerData, PlacementServiceData} {
		adv, err := BuildAdvertisement("8F3K2Q9Z", p, DefaultSettings())
		if err != nil {
			t.Fatalf("%s: BuildAdvertisement failed: %v", p.Name(), err)
		}
		structures, err := advertising.DecodeADStructures(adv.Data)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", p.Name(), err)
		}
		identity, ok := ExtractIdentity(structures)
		if !ok || identity != "8F3K2Q9Z" {
			t.Errorf("%s: expected identity 8F3K2Q9Z, got %q (%v)", p.Name(), identity, ok)
		}
	}
}

func TestParseIdentity(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"RAIL_USER::abc", "abc", true},
		{"\x01\x02RAIL_USER::abc", "abc", true},
		{"RAIL_USER::", "", false},
		{"OTHER::abc", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseIdentity([]byte(tc.in))
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseIdentity(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPlacementByName(t *testing.T) {
	p, err := PlacementByName("service")
	if err != nil || p.Name() != "service" {
		t.Errorf("Expected service placement, got %v (%v)", p, err)
	}
	p, err = PlacementByName("")
	if err != nil || p.Name() != "manufacturer" {
		t.Errorf("Expected manufacturer placement by default, got %v (%v)", p, err)
	}
	if _, err := PlacementByName("eddystone"); err == nil {
		t.Error("Expected error for unknown placement")
	}
}
