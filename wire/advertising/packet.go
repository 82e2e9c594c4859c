package advertising

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PDU types for legacy advertising packets (Link Layer)
const (
	PDUTypeAdvInd        = 0x00 // Connectable undirected advertising
	PDUTypeAdvNonconnInd = 0x02 // Non-connectable undirected advertising
)

// AD types (EIR/AD format) used by this module
const (
	ADTypeFlags                      = 0x01
	ADTypeComplete16BitServiceUUIDs  = 0x03
	ADTypeComplete128BitServiceUUIDs = 0x07
	ADTypeCompleteLocalName          = 0x09
	ADTypeTxPowerLevel               = 0x0A
	ADTypeServiceData16Bit           = 0x16
	ADTypeServiceData128Bit          = 0x21
	ADTypeManufacturerSpecificData   = 0xFF
)

// CompanyIDInternal is reserved by the Bluetooth SIG for internal use and testing
const CompanyIDInternal uint16 = 0xFFFF

const (
	MaxAdvertisingDataLen = 31 // BLE 4.x legacy advertising data limit
	BLEAddressLen         = 6
	adHeaderLen           = 2 // length byte + type byte
)

// AdvertisingPDU represents a legacy advertising packet at the Link Layer
// Format: [PDU Type: 1 byte] [Length: 1 byte] [AdvA: 6 bytes] [AdvData: 0-31 bytes]
type AdvertisingPDU struct {
	PDUType byte
	AdvA    [6]byte
	AdvData []byte
}

// ADStructure is a single Type-Length-Value record in advertising data
// Wire format: [Length: 1 byte] [Type: 1 byte] [Data: N bytes], Length counts Type+Data
type ADStructure struct {
	Type byte
	Data []byte
}

// Len returns the encoded size of the structure including its header
func (s ADStructure) Len() int {
	return adHeaderLen + len(s.Data)
}

// Encode serializes the advertising PDU to binary format
func (pdu *AdvertisingPDU) Encode() ([]byte, error) {
	if len(pdu.AdvData) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("advertising data exceeds %d bytes: %d", MaxAdvertisingDataLen, len(pdu.AdvData))
	}

	buf := make([]byte, 2+BLEAddressLen+len(pdu.AdvData))
	buf[0] = pdu.PDUType
	buf[1] = byte(BLEAddressLen + len(pdu.AdvData))
	copy(buf[2:8], pdu.AdvA[:])
	copy(buf[8:], pdu.AdvData)

	return buf, nil
}

// DecodeAdvertisingPDU parses a binary advertising PDU
func DecodeAdvertisingPDU(data []byte) (*AdvertisingPDU, error) {
	if len(data) < 2+BLEAddressLen {
		return nil, errors.New("advertising PDU too short (minimum 8 bytes)")
	}

	payloadLen := int(data[1])
	if payloadLen < BLEAddressLen {
		return nil, errors.New("invalid payload length (must be at least 6 for address)")
	}
	if len(data) < 2+payloadLen {
		return nil, fmt.Errorf("advertising PDU truncated: expected %d bytes, got %d", 2+payloadLen, len(data))
	}

	advDataLen := payloadLen - BLEAddressLen
	if advDataLen > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("advertising data exceeds %d bytes: %d", MaxAdvertisingDataLen, advDataLen)
	}

	pdu := &AdvertisingPDU{PDUType: data[0]}
	copy(pdu.AdvA[:], data[2:8])
	if advDataLen > 0 {
		pdu.AdvData = make([]byte, advDataLen)
		copy(pdu.AdvData, data[8:8+advDataLen])
	}
	return pdu, nil
}

// EncodedLen returns the size EncodeADStructures would produce
func EncodedLen(structures []ADStructure) int {
	n := 0
	for _, s := range structures {
		n += s.Len()
	}
	return n
}

// EncodeADStructures encodes AD structures into one advertising data payload
// limited to budget bytes
func EncodeADStructures(structures []ADStructure, budget int) ([]byte, error) {
	buf := make([]byte, 0, EncodedLen(structures))

	for _, s := range structures {
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max 255)", length)
		}
		buf = append(buf, byte(length), s.Type)
		buf = append(buf, s.Data...)
	}

	if len(buf) > budget {
		return nil, &BudgetError{Size: len(buf), Budget: budget}
	}
	return buf, nil
}

// BudgetError reports advertising data larger than the medium allows
type BudgetError struct {
	Size   int
	Budget int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("total advertising data exceeds %d bytes: %d", e.Budget, e.Size)
}

// DecodeADStructures parses advertising data into individual AD structures
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var structures []ADStructure
	offset := 0

	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			// Zero padding ends the significant part
			break
		}
		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}

		adData := make([]byte, length-1)
		copy(adData, data[offset+1:offset+length])
		structures = append(structures, ADStructure{
			Type: data[offset],
			Data: adData,
		})
		offset += length
	}

	return structures, nil
}

// NewTxPowerLevelAD creates a Tx power level AD structure
func NewTxPowerLevelAD(powerLevel int8) ADStructure {
	return ADStructure{Type: ADTypeTxPowerLevel, Data: []byte{byte(powerLevel)}}
}

// NewManufacturerSpecificDataAD creates a manufacturer-specific data AD structure
func NewManufacturerSpecificDataAD(companyID uint16, data []byte) ADStructure {
	payload := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], companyID)
	copy(payload[2:], data)
	return ADStructure{Type: ADTypeManufacturerSpecificData, Data: payload}
}

// NewServiceData16AD creates a service data AD structure keyed by a 16-bit UUID
func NewServiceData16AD(uuid uint16, data []byte) ADStructure {
	payload := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], uuid)
	copy(payload[2:], data)
	return ADStructure{Type: ADTypeServiceData16Bit, Data: payload}
}

// NewServiceData128AD creates a service data AD structure keyed by a 128-bit UUID.
// uuid is in big-endian (string) order; the air format is little-endian.
func NewServiceData128AD(uuid [16]byte, data []byte) ADStructure {
	payload := make([]byte, 16+len(data))
	for i := 0; i < 16; i++ {
		payload[i] = uuid[15-i]
	}
	copy(payload[16:], data)
	return ADStructure{Type: ADTypeServiceData128Bit, Data: payload}
}

// GetTxPowerLevel extracts the Tx power level from AD structures
func GetTxPowerLevel(structures []ADStructure) (int8, bool) {
	for _, s := range structures {
		if s.Type == ADTypeTxPowerLevel && len(s.Data) == 1 {
			return int8(s.Data[0]), true
		}
	}
	return 0, false
}

// GetManufacturerData extracts manufacturer-specific data from AD structures
func GetManufacturerData(structures []ADStructure) (companyID uint16, data []byte, found bool) {
	for _, s := range structures {
		if s.Type == ADTypeManufacturerSpecificData && len(s.Data) >= 2 {
			return binary.LittleEndian.Uint16(s.Data[0:2]), s.Data[2:], true
		}
	}
	return 0, nil, false
}

// ServiceData is a decoded service data record; UUID16 is set for 16-bit keys
type ServiceData struct {
	UUID16  uint16
	UUID128 [16]byte
	Is128   bool
	Data    []byte
}

// GetServiceData extracts every service data record from AD structures
func GetServiceData(structures []ADStructure) []ServiceData {
	var out []ServiceData
	for _, s := range structures {
		switch {
		case s.Type == ADTypeServiceData16Bit && len(s.Data) >= 2:
			out = append(out, ServiceData{
				UUID16: binary.LittleEndian.Uint16(s.Data[0:2]),
				Data:   s.Data[2:],
			})
		case s.Type == ADTypeServiceData128Bit && len(s.Data) >= 16:
			sd := ServiceData{Is128: true, Data: s.Data[16:]}
			for i := 0; i < 16; i++ {
				sd.UUID128[i] = s.Data[15-i]
			}
			out = append(out, sd)
		}
	}
	return out
}

// PDUTypeName returns a human-readable name for a PDU type
func PDUTypeName(pduType byte) string {
	switch pduType {
	case PDUTypeAdvInd:
		return "ADV_IND"
	case PDUTypeAdvNonconnInd:
		return "ADV_NONCONN_IND"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", pduType)
	}
}

// ADTypeName returns a human-readable name for an AD type
func ADTypeName(adType byte) string {
	switch adType {
	case ADTypeFlags:
		return "Flags"
	case ADTypeComplete16BitServiceUUIDs:
		return "Complete 16-bit Service UUIDs"
	case ADTypeComplete128BitServiceUUIDs:
		return "Complete 128-bit Service UUIDs"
	case ADTypeCompleteLocalName:
		return "Complete Local Name"
	case ADTypeTxPowerLevel:
		return "Tx Power Level"
	case ADTypeServiceData16Bit:
		return "Service Data - 16-bit UUID"
	case ADTypeServiceData128Bit:
		return "Service Data - 128-bit UUID"
	case ADTypeManufacturerSpecificData:
		return "Manufacturer Specific Data"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", adType)
	}
}
