package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinkregel/local-media/musicd/internal/detect"
	"github.com/austinkregel/local-media/musicd/internal/params"
)

func strongOutputs() detect.Outputs {
	r := detect.Result{Strength: 1.0, WouldFire: true}
	return detect.Outputs{Drummer: r, Flux: r, HFC: r, Bass: r, Complex: r, Mel: r}
}

func quietOutputs() detect.Outputs {
	r := detect.Result{Strength: 0.01, WouldFire: false}
	return detect.Outputs{Drummer: r, Flux: r, HFC: r, Bass: r, Complex: r, Mel: r}
}

func TestFuserFiresOnStrongAgreement(t *testing.T) {
	f := New()
	p := params.Default().Fusion

	onset, fired := f.Update(0, strongOutputs(), p)
	require.True(t, fired)
	assert.GreaterOrEqual(t, onset.Strength, 0.0)
	assert.LessOrEqual(t, onset.Strength, 1.0)
	assert.NotZero(t, onset.ContributingDetectors)
}

func TestFuserSuppressesSustainedQuietInput(t *testing.T) {
	f := New()
	p := params.Default().Fusion

	for i := 0; i < 100; i++ {
		_, fired := f.Update(float64(i)*16, quietOutputs(), p)
		assert.False(t, fired)
	}
}

func TestFuserRespectsGlobalCooldown(t *testing.T) {
	f := New()
	p := params.Default().Fusion
	p.FusionCooldownMs = 100

	onset1, fired1 := f.Update(0, strongOutputs(), p)
	require.True(t, fired1)

	_, fired2 := f.Update(50, strongOutputs(), p)
	assert.False(t, fired2, "second onset within cooldown window must be suppressed")

	onset3, fired3 := f.Update(150, strongOutputs(), p)
	require.True(t, fired3)
	assert.Greater(t, onset3.TimestampMs, onset1.TimestampMs)
}

func TestFuserStrengthNeverExceedsOne(t *testing.T) {
	f := New()
	p := params.Default().Fusion
	p.AgreeK = 2.0 // aggressive boost

	onset, fired := f.Update(0, strongOutputs(), p)
	require.True(t, fired)
	assert.LessOrEqual(t, onset.Strength, 1.0)
}

func TestFuserClassifiesLowBandWhenBassDominates(t *testing.T) {
	f := New()
	p := params.Default().Fusion

	out := strongOutputs()
	out.Bass = detect.Result{Strength: 0.9, WouldFire: true}
	out.HFC = detect.Result{Strength: 0.1, WouldFire: true}

	onset, fired := f.Update(0, out, p)
	require.True(t, fired)
	assert.Equal(t, BandLow, onset.Band)
}

func TestFuserClassifiesHighBandWhenHFCDominates(t *testing.T) {
	f := New()
	p := params.Default().Fusion

	out := strongOutputs()
	out.Bass = detect.Result{Strength: 0.1, WouldFire: true}
	out.HFC = detect.Result{Strength: 0.9, WouldFire: true}

	onset, fired := f.Update(0, out, p)
	require.True(t, fired)
	assert.Equal(t, BandHigh, onset.Band)
}

// TestFuserDoesNotLetGammaOverrideClearHFCWin covers the boundary the
// extreme-value tests above miss: HFC clearly dominates Bass (not an
// ambiguous case), so the band must be High even though Bass exceeds
// bandGamma on its own.
func TestFuserDoesNotLetGammaOverrideClearHFCWin(t *testing.T) {
	f := New()
	p := params.Default().Fusion

	out := strongOutputs()
	out.Bass = detect.Result{Strength: 0.6, WouldFire: true}
	out.HFC = detect.Result{Strength: 0.9, WouldFire: true}

	onset, fired := f.Update(0, out, p)
	require.True(t, fired)
	assert.Equal(t, BandHigh, onset.Band)
}

// TestFuserUsesGammaOnlyWhenBassAndHFCAreNearlyTied exercises the actual
// ambiguous case spec.md §4.5 step 5 describes: Bass and HFC are close
// enough to call a tie, so bandGamma decides.
func TestFuserUsesGammaOnlyWhenBassAndHFCAreNearlyTied(t *testing.T) {
	f := New()
	p := params.Default().Fusion

	out := strongOutputs()
	out.Bass = detect.Result{Strength: 0.55, WouldFire: true}
	out.HFC = detect.Result{Strength: 0.52, WouldFire: true}

	onset, fired := f.Update(0, out, p)
	require.True(t, fired)
	assert.Equal(t, BandLow, onset.Band, "Bass > bandGamma in a near-tie should classify Low")
}
