package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBundleValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsOutOfRangeFrontEnd(t *testing.T) {
	b := Default()
	b.FrontEnd.HWTargetLo = 2.0 // out of [0,1]

	err := b.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Violations)
}

func TestValidateRejectsInvertedHWTargets(t *testing.T) {
	b := Default()
	b.FrontEnd.HWTargetLo = 0.5
	b.FrontEnd.HWTargetHi = 0.4

	err := b.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	found := false
	for _, msg := range verr.Violations {
		if msg != "" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateRejectsInvertedBPMRange(t *testing.T) {
	b := Default()
	b.Rhythm.BPMMin = 150
	b.Rhythm.BPMMax = 100

	require.Error(t, b.Validate())
}

func TestValidateWholeBundleReportsAllViolations(t *testing.T) {
	b := Default()
	b.FrontEnd.HWTargetLo = -1
	b.Detectors.Drummer.Threshold = 100
	b.Rhythm.KHypotheses = 99

	err := b.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Violations), 3)
}

func TestValidateDoesNotMutateBundle(t *testing.T) {
	b := Default()
	before := b
	_ = b.Validate()
	assert.Equal(t, before, b)
}
