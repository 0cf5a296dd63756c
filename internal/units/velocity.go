package units

// KV returns the scale factor converting mm/s into the encoder-count change
// per servo loop required by the SV command. For the default configuration
// this is 65536 * 1000 / 5000.
func (s Scale) KV() float64 {
	return 65536 * s.EncCountsPerMM / s.ServoLoopFreq
}

// KA returns the scale factor converting mm/s/s into the SA command argument.
func (s Scale) KA() float64 {
	return 65536 * s.EncCountsPerMM / (s.ServoLoopFreq * s.ServoLoopFreq)
}

// VelocityArg converts a velocity in mm/s to the integer argument for SV.
// The controller truncates fractional arguments, so truncation (not rounding)
// is applied here to match observed device behaviour.
func (s Scale) VelocityArg(mmPerSecond float64) int64 {
	return int64(s.KV() * mmPerSecond)
}

// AccelerationArg converts an acceleration in mm/s/s to the integer argument
// for SA.
func (s Scale) AccelerationArg(mmPerSecondSquared float64) int64 {
	return int64(s.KA() * mmPerSecondSquared)
}
