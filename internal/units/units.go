// Package units provides the speed display units of the HUD and conversions
// from the m/s stored in telemetry logs.
package units

import "strings"

// Unit constants
const (
	KMH = "kmh"
	MPH = "mph"
	MPS = "mps"
)

const (
	mpsToKMH = 3.6
	mpsToMPH = 2.2369362920544
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KMH, MPH, MPS}

// Normalize maps accepted spellings ("km/h", "kph", "KMH", ...) onto a unit
// constant. Unknown values return "".
func Normalize(unit string) string {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "kmh", "km/h", "kph", "kmph":
		return KMH
	case "mph":
		return MPH
	case "mps", "m/s":
		return MPS
	}
	return ""
}

// IsValid checks if the given unit is recognised by Normalize.
func IsValid(unit string) bool {
	return Normalize(unit) != ""
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units default to km/h, the HUD's default.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch Normalize(targetUnits) {
	case MPH:
		return speedMPS * mpsToMPH
	case MPS:
		return speedMPS
	default:
		return speedMPS * mpsToKMH
	}
}

// Label returns the short display label of a unit.
func Label(unit string) string {
	switch Normalize(unit) {
	case MPH:
		return "mph"
	case MPS:
		return "m/s"
	default:
		return "km/h"
	}
}
