// Package units converts between physical stage units and LAC-1 native
// quantities. The controller works in encoder counts; velocity and
// acceleration commands are scaled by the servo loop frequency.
package units

import "math"

// Scale describes the conversion between physical units and controller
// quantities for one stage/servo configuration.
type Scale struct {
	// EncCountsPerMM is the number of encoder counts per millimetre of travel.
	EncCountsPerMM float64
	// ServoLoopFreq is the servo loop frequency in Hz.
	ServoLoopFreq float64
}

// DefaultScale matches the LCS25-025 stage: 1000 counts/mm, 5 kHz servo loop.
func DefaultScale() Scale {
	return Scale{EncCountsPerMM: 1000, ServoLoopFreq: 5000}
}

// EncFromMM converts millimetres to encoder counts, rounding to the nearest
// count.
func (s Scale) EncFromMM(mm float64) int64 {
	return int64(math.Round(mm * s.EncCountsPerMM))
}

// MMFromEnc converts encoder counts to millimetres.
func (s Scale) MMFromEnc(counts int64) float64 {
	return float64(counts) / s.EncCountsPerMM
}

// EncFromUM converts micrometres to encoder counts.
func (s Scale) EncFromUM(um float64) int64 {
	return int64(math.Round(um * s.EncCountsPerMM / 1000))
}

// UMFromEnc converts encoder counts to micrometres.
func (s Scale) UMFromEnc(counts int64) float64 {
	return 1000 * float64(counts) / s.EncCountsPerMM
}
