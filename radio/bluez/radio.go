// Package bluez drives a real adapter through tinygo.org/x/bluetooth (BlueZ on
// Linux, CoreBluetooth on macOS, WinRT on Windows).
package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/user/railpass-blue/broadcast"
	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/wire/advertising"
	"tinygo.org/x/bluetooth"
)

// Radio advertises through the host adapter
type Radio struct {
	mu      sync.Mutex
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	enabled bool
	active  bool
}

// NewRadio wraps the default adapter
func NewRadio() *Radio {
	return &Radio{adapter: bluetooth.DefaultAdapter}
}

// Enable powers up the adapter, once
func (r *Radio) Enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return nil
	}
	if err := r.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}
	r.enabled = true
	return nil
}

// Advertise configures and starts the adapter's default advertisement
func (r *Radio) Advertise(ctx context.Context, adv *broadcast.Advertisement) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return &broadcast.StartError{Reason: broadcast.ReasonAlreadyStarted}
	}

	opts, err := Options(adv)
	if err != nil {
		return &broadcast.StartError{Reason: broadcast.ReasonInternalError, Err: err}
	}

	if r.adv == nil {
		r.adv = r.adapter.DefaultAdvertisement()
	}
	if err := r.adv.Configure(opts); err != nil {
		return &broadcast.StartError{Reason: reasonFor(err), Err: err}
	}
	if err := r.adv.Start(); err != nil {
		return &broadcast.StartError{Reason: reasonFor(err), Err: err}
	}

	r.active = true
	logger.Debug(logger.Prefix(adv.Identity, "bluez"), "advertisement registered (%s, every %v)",
		adv.Placement.Name(), adv.Settings.Interval())
	return nil
}

// Stop unregisters the advertisement
func (r *Radio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || r.adv == nil {
		return nil
	}
	r.active = false
	return r.adv.Stop()
}

// Options translates an encoded advertisement into adapter options. The
// adapter builds its own AD records from these, so each record of adv is
// mapped back onto the matching option field.
func Options(adv *broadcast.Advertisement) (bluetooth.AdvertisementOptions, error) {
	advType := bluetooth.AdvertisingTypeNonConnInd
	if adv.Settings.Connectable {
		advType = bluetooth.AdvertisingTypeInd
	}
	opts := bluetooth.AdvertisementOptions{
		AdvertisementType: advType,
		Interval:          bluetooth.NewDuration(adv.Settings.Interval()),
	}

	for _, s := range adv.Structures {
		switch s.Type {
		case advertising.ADTypeManufacturerSpecificData:
			company, data, _ := advertising.GetManufacturerData([]advertising.ADStructure{s})
			opts.ManufacturerData = append(opts.ManufacturerData, bluetooth.ManufacturerDataElement{
				CompanyID: company,
				Data:      data,
			})
		case advertising.ADTypeServiceData16Bit, advertising.ADTypeServiceData128Bit:
			for _, sd := range advertising.GetServiceData([]advertising.ADStructure{s}) {
				key := bluetooth.New16BitUUID(sd.UUID16)
				if sd.Is128 {
					parsed, err := bluetooth.ParseUUID(uuid.UUID(sd.UUID128).String())
					if err != nil {
						return opts, err
					}
					key = parsed
				}
				opts.ServiceData = append(opts.ServiceData, bluetooth.ServiceDataElement{UUID: key, Data: sd.Data})
			}
		case advertising.ADTypeTxPowerLevel:
			// The adapter picks its own power; the record is informational
		default:
			return opts, fmt.Errorf("unsupported AD record %s", advertising.ADTypeName(s.Type))
		}
	}
	return opts, nil
}

// reasonFor maps D-Bus / platform error text to advertiser failure reasons
func reasonFor(err error) broadcast.FailureReason {
	if err == nil {
		return broadcast.ReasonNone
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "notpermitted"), strings.Contains(msg, "not permitted"),
		strings.Contains(msg, "notauthorized"), strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "access denied"):
		return broadcast.ReasonUnauthorized
	case strings.Contains(msg, "alreadyexists"), strings.Contains(msg, "already exists"),
		strings.Contains(msg, "already advertising"):
		return broadcast.ReasonAlreadyStarted
	case strings.Contains(msg, "notsupported"), strings.Contains(msg, "not supported"):
		return broadcast.ReasonFeatureUnsupported
	case strings.Contains(msg, "maximum"), strings.Contains(msg, "too many"),
		strings.Contains(msg, "no more"):
		return broadcast.ReasonTooManyAdvertisers
	case strings.Contains(msg, "invalidlength"), strings.Contains(msg, "too large"),
		strings.Contains(msg, "too long"):
		return broadcast.ReasonDataTooLarge
	case strings.Contains(msg, "not ready"), strings.Contains(msg, "powered off"),
		strings.Contains(msg, "no such adapter"):
		return broadcast.ReasonRadioUnavailable
	}
	return broadcast.ReasonInternalError
}
