package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultScale(t *testing.T) {
	s := DefaultScale()
	assert.Equal(t, 1000.0, s.EncCountsPerMM)
	assert.Equal(t, 5000.0, s.ServoLoopFreq)
}

func TestEncFromMM(t *testing.T) {
	s := DefaultScale()
	assert.Equal(t, int64(2000), s.EncFromMM(2))
	assert.Equal(t, int64(-1500), s.EncFromMM(-1.5))
	// rounds to nearest count
	assert.Equal(t, int64(1), s.EncFromMM(0.0006))
	assert.Equal(t, int64(0), s.EncFromMM(0.0004))
}

func TestMMFromEnc(t *testing.T) {
	s := DefaultScale()
	assert.InDelta(t, 2.0, s.MMFromEnc(2000), 1e-12)
	assert.InDelta(t, -0.001, s.MMFromEnc(-1), 1e-12)
}

func TestMicrometreConversions(t *testing.T) {
	s := DefaultScale()
	// at 1000 counts/mm one count is one micrometre
	assert.Equal(t, int64(1500), s.EncFromUM(1500))
	assert.InDelta(t, 1500.0, s.UMFromEnc(1500), 1e-12)

	// a coarser encoder
	coarse := Scale{EncCountsPerMM: 100, ServoLoopFreq: 5000}
	assert.Equal(t, int64(150), coarse.EncFromUM(1500))
	assert.InDelta(t, 1500.0, coarse.UMFromEnc(150), 1e-12)
}

func TestVelocityScaleFactors(t *testing.T) {
	s := DefaultScale()
	assert.InDelta(t, 13107.2, s.KV(), 1e-9)
	assert.InDelta(t, 2.62144, s.KA(), 1e-9)
}

func TestVelocityArgTruncates(t *testing.T) {
	s := DefaultScale()
	// 1 mm/s scales to 13107.2; the fractional part is dropped, not rounded
	assert.Equal(t, int64(13107), s.VelocityArg(1))
	assert.Equal(t, int64(13107200), s.VelocityArg(1000))
	assert.Equal(t, int64(0), s.VelocityArg(0))
}

func TestAccelerationArgTruncates(t *testing.T) {
	s := DefaultScale()
	assert.Equal(t, int64(2), s.AccelerationArg(1))
	assert.Equal(t, int64(78643), s.AccelerationArg(30000))
}
