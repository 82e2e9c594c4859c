package broadcast

import (
	"fmt"
	"time"
)

// AdvertiseMode trades discoverability against battery life
type AdvertiseMode int

const (
	ModeLowPower   AdvertiseMode = iota // 1000ms interval
	ModeBalanced                        // 250ms interval
	ModeLowLatency                      // 100ms interval
)

// TxPower is the transmit power level requested from the radio
type TxPower int

const (
	TxPowerUltraLow TxPower = iota // -21 dBm
	TxPowerLow                     // -15 dBm
	TxPowerMedium                  // -7 dBm
	TxPowerHigh                    // 1 dBm
)

// Settings are the advertising parameters of a session
type Settings struct {
	Mode           AdvertiseMode
	TxPower        TxPower
	Connectable    bool
	Timeout        time.Duration // 0 = advertise until stopped
	IncludeTxPower bool
}

// DefaultSettings favours discoverability: non-connectable, no timeout,
// maximum power, lowest latency
func DefaultSettings() Settings {
	return Settings{
		Mode:        ModeLowLatency,
		TxPower:     TxPowerHigh,
		Connectable: false,
		Timeout:     0,
	}
}

// Interval returns the advertising interval for the mode
func (s Settings) Interval() time.Duration {
	switch s.Mode {
	case ModeLowPower:
		return 1000 * time.Millisecond
	case ModeBalanced:
		return 250 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// TxPowerDbm converts the power level to dBm
func (s Settings) TxPowerDbm() int8 {
	switch s.TxPower {
	case TxPowerUltraLow:
		return -21
	case TxPowerLow:
		return -15
	case TxPowerHigh:
		return 1
	default:
		return -7
	}
}

func (m AdvertiseMode) String() string {
	switch m {
	case ModeLowPower:
		return "low_power"
	case ModeBalanced:
		return "balanced"
	case ModeLowLatency:
		return "low_latency"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (p TxPower) String() string {
	switch p {
	case TxPowerUltraLow:
		return "ultra_low"
	case TxPowerLow:
		return "low"
	case TxPowerMedium:
		return "medium"
	case TxPowerHigh:
		return "high"
	}
	return fmt.Sprintf("tx_power(%d)", int(p))
}
