package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEmptyStageProfileDefaults(t *testing.T) {
	p := EmptyStageProfile()

	assert.Equal(t, "LCS25-025", p.GetName())
	assert.Equal(t, 25.0, p.GetTravelMM())
	assert.Equal(t, 50, p.GetServoGain())
	assert.Equal(t, 80, p.GetIntegralGain())
	assert.Equal(t, 600, p.GetDerivativeGain())
	assert.Equal(t, 5000, p.GetIntegrationLimit())
	assert.Equal(t, 16383, p.GetServoErrorLimit())
	assert.Equal(t, 1, p.GetDerivativeRate())
	assert.Equal(t, 1, p.GetFrictionComp())
	assert.Equal(t, 1.0, p.GetSafeVelocityMMS())
	assert.Equal(t, 1.0, p.GetSafeAccelMMSS())
	assert.True(t, p.GetRangeChecking())
	assert.False(t, p.GetAllowHomeMacro())

	scale := p.GetScale()
	assert.Equal(t, 1000.0, scale.EncCountsPerMM)
	assert.Equal(t, 5000.0, scale.ServoLoopFreq)
}

func TestLoadStageProfilePartial(t *testing.T) {
	path := writeProfile(t, "long.json", `{
		"name": "LCS50-050",
		"travel_mm": 50,
		"servo_gain": 42,
		"allow_home_macro": true
	}`)

	p, err := LoadStageProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "LCS50-050", p.GetName())
	assert.Equal(t, 50.0, p.GetTravelMM())
	assert.Equal(t, 42, p.GetServoGain())
	assert.True(t, p.GetAllowHomeMacro())

	// unset fields keep their defaults
	assert.Equal(t, 600, p.GetDerivativeGain())
	assert.True(t, p.GetRangeChecking())
}

func TestLoadStageProfileShippedDefaults(t *testing.T) {
	p, err := LoadStageProfile(filepath.Join("..", "..", DefaultProfilePath))
	require.NoError(t, err)
	assert.Equal(t, "LCS25-025", p.GetName())
	assert.Equal(t, 25.0, p.GetTravelMM())
}

func TestLoadStageProfileRejectsNonJSON(t *testing.T) {
	path := writeProfile(t, "profile.yaml", "name: nope")
	_, err := LoadStageProfile(path)
	assert.Error(t, err)
}

func TestLoadStageProfileRejectsMissing(t *testing.T) {
	_, err := LoadStageProfile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadStageProfileRejectsBadJSON(t *testing.T) {
	path := writeProfile(t, "bad.json", "{not json")
	_, err := LoadStageProfile(path)
	assert.Error(t, err)
}

func TestLoadStageProfileRejectsInvalidValues(t *testing.T) {
	path := writeProfile(t, "invalid.json", `{"travel_mm": -1}`)
	_, err := LoadStageProfile(path)
	assert.Error(t, err)
}

func TestStageProfileValidate(t *testing.T) {
	neg := -5.0
	assert.Error(t, (&StageProfile{TravelMM: &neg}).Validate())
	assert.Error(t, (&StageProfile{EncCountsPerMM: &neg}).Validate())
	assert.Error(t, (&StageProfile{ServoLoopFreq: &neg}).Validate())
	assert.Error(t, (&StageProfile{SafeVelocityMMS: &neg}).Validate())

	badGain := -1
	assert.Error(t, (&StageProfile{ServoGain: &badGain}).Validate())

	zero := 0
	assert.NoError(t, (&StageProfile{IntegralGain: &zero}).Validate())
	assert.NoError(t, EmptyStageProfile().Validate())
}
