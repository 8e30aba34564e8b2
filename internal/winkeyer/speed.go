// internal/winkeyer/speed.go
package winkeyer

import "errors"

// PotMax is the largest raw speed pot value (5 bits).
const PotMax = 31

var (
	// ErrInvalidMinWPM indicates the pot minimum must be positive
	ErrInvalidMinWPM = errors.New("min WPM must be positive")
	// ErrInvalidRangeWPM indicates the pot range must not be negative
	ErrInvalidRangeWPM = errors.New("WPM range must not be negative")
)

// ToWPM maps a raw pot value onto [minWPM, minWPM+rangeWPM], rounding to nearest.
// Raw values outside 0..31 are clamped.
func ToWPM(raw, minWPM, rangeWPM int) int {
	if raw < 0 {
		raw = 0
	}
	if raw > PotMax {
		raw = PotMax
	}
	if rangeWPM < 0 {
		rangeWPM = 0
	}
	// round half up in integers: (2*a + b) / (2*b)
	return minWPM + (2*raw*rangeWPM+PotMax)/(2*PotMax)
}

// SpeedRange is the WPM span the keyer's pot is configured for.
type SpeedRange struct {
	MinWPM   int
	RangeWPM int
}

// Validate checks the range is usable.
func (r SpeedRange) Validate() error {
	if r.MinWPM <= 0 {
		return ErrInvalidMinWPM
	}
	if r.RangeWPM < 0 {
		return ErrInvalidRangeWPM
	}
	return nil
}

// Max returns the top of the range.
func (r SpeedRange) Max() int {
	return r.MinWPM + r.RangeWPM
}

// WPM converts a pot reading using this range.
func (r SpeedRange) WPM(raw int) int {
	return ToWPM(raw, r.MinWPM, r.RangeWPM)
}
