package ranging

import (
	"errors"
	"fmt"
	"math"

	"github.com/roman-kulish/jamming-locator/internal/iq"
)

const (
	// GPSL1FrequencyMHz is the GPS L1 carrier frequency
	GPSL1FrequencyMHz = 1575.42

	DefaultTxPowerDB         = 40.0
	DefaultPathLossExponent  = 3.0
	DefaultActivityThreshold = 0.1
)

// Calibration holds the constants of the log-distance path-loss model
type Calibration struct {
	TxPowerDB         float64       `yaml:"txPower" json:"txPower"`                     // Reference transmit power (dB)
	PathLossExponent  float64       `yaml:"pathLossExponent" json:"pathLossExponent"`   // Empirical decay exponent n
	FrequencyMHz      float64       `yaml:"frequencyMHz" json:"frequencyMHz"`           // Carrier frequency (MHz)
	ActivityThreshold float64       `yaml:"activityThreshold" json:"activityThreshold"` // Amplitude marking signal turn-on
	Convention        iq.Convention `yaml:"convention" json:"convention"`               // Raw byte to sample conversion
}

// DefaultCalibration returns the GPS L1 calibration
func DefaultCalibration() Calibration {
	return Calibration{
		TxPowerDB:         DefaultTxPowerDB,
		PathLossExponent:  DefaultPathLossExponent,
		FrequencyMHz:      GPSL1FrequencyMHz,
		ActivityThreshold: DefaultActivityThreshold,
		Convention:        iq.SignedNative,
	}
}

func (c Calibration) Validate() error {
	var errs []error
	if c.PathLossExponent <= 0 || math.IsNaN(c.PathLossExponent) {
		errs = append(errs, fmt.Errorf("path loss exponent must be positive: %v", c.PathLossExponent))
	}
	if c.FrequencyMHz <= 0 || math.IsNaN(c.FrequencyMHz) {
		errs = append(errs, fmt.Errorf("frequency must be positive: %v MHz", c.FrequencyMHz))
	}
	if c.ActivityThreshold < 0 || math.IsNaN(c.ActivityThreshold) {
		errs = append(errs, fmt.Errorf("activity threshold must not be negative: %v", c.ActivityThreshold))
	}
	if err := c.Convention.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PathLossAt1m returns the one-meter free-space path loss reference in dB
func (c Calibration) PathLossAt1m() float64 {
	return 20*math.Log10(c.FrequencyMHz) - 27.55
}

// Distance solves the log-distance path-loss equation for the distance in meters
func (c Calibration) Distance(receivedPowerDB float64) float64 {
	return math.Pow(10, (c.TxPowerDB-receivedPowerDB-c.PathLossAt1m())/(10*c.PathLossExponent))
}

// ReceivedPower is the inverse of Distance: the power in dB expected at the given distance
func (c Calibration) ReceivedPower(distance float64) float64 {
	return c.TxPowerDB - c.PathLossAt1m() - 10*c.PathLossExponent*math.Log10(distance)
}

// ReceivedPowerDB converts a mean amplitude into the received power proxy in dB
func ReceivedPowerDB(meanAmplitude float64) float64 {
	return 10 * math.Log10(meanAmplitude*meanAmplitude)
}
