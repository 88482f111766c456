// Package fusion implements the ensemble fusion stage (spec.md §4.5):
// a weighted combination of the detector ensemble's per-hop strengths, an
// agreement boost, a global cooldown, and low/high band classification,
// emitting at most one onset per hop.
package fusion

import (
	"math"

	"github.com/austinkregel/local-media/musicd/internal/detect"
	"github.com/austinkregel/local-media/musicd/internal/params"
)

// Band classifies an onset as coming predominantly from the low or high
// end of the spectrum (spec.md §4.5 step 5).
type Band int

const (
	BandLow Band = iota
	BandHigh
)

// bandGamma is the ambiguous-case tie-break threshold named in spec.md
// §4.5 step 5 ("the band is low if BassBand strength > γ"). Not itself a
// named spec.md §6 parameter, so fixed here.
const bandGamma = 0.5

// bandAmbiguousEpsilon bounds how close BassBand and HFC strength must be
// before the case counts as "ambiguous" and falls back to bandGamma.
// Not named in spec.md; picked small enough that a clear HFC or Bass win
// is never overridden by the gamma tie-break.
const bandAmbiguousEpsilon = 0.05

// Onset is the discrete event fusion emits (spec.md §3 "Onset event").
// Lifecycle: created here, consumed by rhythm and telemetry in the same
// hop, then discarded — callers must not retain it past that hop.
type Onset struct {
	TimestampMs         float64
	Strength            float64
	Band                Band
	ContributingDetectors uint8 // bitset, bit order: drummer,flux,hfc,bass,complex,mel
}

const (
	bitDrummer = 1 << iota
	bitFlux
	bitHFC
	bitBass
	bitComplex
	bitMel
)

// fusionRangeMultiplier scales fusion_threshold into the denominator
// (fusionRange) normalizing the boosted sum S' into the emitted strength
// (spec.md §4.5 step 6): strength = S' / (2 · fusion_threshold), so an
// onset right at threshold reports 0.5 and S' ≥ 2× threshold reports 1.
// S' itself is not clamped; the division result is clamped to [0,1].
const fusionRangeMultiplier = 2.0

// Fuser holds the fusion stage's private state: the last-fired timestamp
// for the global cooldown (spec.md §4.5 step 4).
type Fuser struct {
	hasFired   bool
	lastFireMs float64
}

// New constructs a Fuser with no prior onset history.
func New() *Fuser {
	return &Fuser{}
}

// Reset clears the cooldown history (pipeline restart, SPEC_FULL.md §3).
func (f *Fuser) Reset() {
	f.hasFired = false
	f.lastFireMs = 0
}

// Update consumes one hop's detector Outputs and returns the onset for
// this hop, if any (spec.md §4.5).
func (f *Fuser) Update(nowMs float64, out detect.Outputs, p params.Fusion) (Onset, bool) {
	weighted := []struct {
		r      detect.Result
		weight float64
		bit    uint8
	}{
		{out.Drummer, p.WeightDrummer, bitDrummer},
		{out.Flux, p.WeightFlux, bitFlux},
		{out.HFC, p.WeightHFC, bitHFC},
		{out.Bass, p.WeightBass, bitBass},
		{out.Complex, p.WeightComplex, bitComplex},
		{out.Mel, p.WeightMel, bitMel},
	}

	var s float64
	var agreement int
	var bits uint8
	for _, w := range weighted {
		s += w.weight * w.r.Strength
		if w.r.WouldFire {
			agreement++
			bits |= w.bit
		}
	}

	boost := 1.0
	if agreement > 1 {
		boost = 1 + p.AgreeK*float64(agreement-1)
	}
	sBoosted := s * boost

	cooldownOK := !f.hasFired || (nowMs-f.lastFireMs) >= p.FusionCooldownMs
	if sBoosted < p.FusionThreshold || !cooldownOK {
		return Onset{}, false
	}

	band := BandHigh
	switch {
	case math.Abs(out.Bass.Strength-out.HFC.Strength) <= bandAmbiguousEpsilon:
		if out.Bass.Strength > bandGamma {
			band = BandLow
		}
	case out.Bass.Strength > out.HFC.Strength:
		band = BandLow
	}

	fusionRange := fusionRangeMultiplier * p.FusionThreshold
	if fusionRange <= 0 {
		fusionRange = 1
	}
	strength := sBoosted / fusionRange
	if strength > 1 {
		strength = 1
	}
	if strength < 0 {
		strength = 0
	}

	f.hasFired = true
	f.lastFireMs = nowMs

	return Onset{
		TimestampMs:           nowMs,
		Strength:              strength,
		Band:                  band,
		ContributingDetectors: bits,
	}, true
}
