package broadcast

import (
	"errors"

	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/wire/advertising"
)

// Advertisement is everything a radio needs to put one identity on air
type Advertisement struct {
	Identity   string
	Settings   Settings
	Placement  Placement
	Payload    []byte                    // RAIL_USER::<identity>
	Structures []advertising.ADStructure // AD records in broadcast order
	Data       []byte                    // encoded advertising data
}

// BuildAdvertisement encodes identity with the given placement and settings.
// It fails with ENCODING_TOO_LARGE before any radio is involved.
func BuildAdvertisement(identity string, placement Placement, settings Settings) (*Advertisement, error) {
	payload, err := EncodePayload(identity)
	if err != nil {
		return nil, err
	}
	if placement == nil {
		placement = PlacementManufacturerData
	}

	var structures []advertising.ADStructure
	if settings.IncludeTxPower {
		structures = append(structures, advertising.NewTxPowerLevelAD(settings.TxPowerDbm()))
	}
	structures = append(structures, placement.Record(payload))

	data, err := advertising.EncodeADStructures(structures, advertising.MaxAdvertisingDataLen)
	if err != nil {
		var budgetErr *advertising.BudgetError
		if errors.As(err, &budgetErr) {
			return nil, errs.EncodingTooLarge(budgetErr.Size, budgetErr.Budget)
		}
		return nil, err
	}

	return &Advertisement{
		Identity:   identity,
		Settings:   settings,
		Placement:  placement,
		Payload:    payload,
		Structures: structures,
		Data:       data,
	}, nil
}
