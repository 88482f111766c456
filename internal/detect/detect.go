// Package detect implements the ensemble of onset detectors (spec.md §4.4):
// Drummer, SpectralFlux, HFC, BassBand, ComplexDomain and MelFlux. Every
// detector shares the same adaptive-threshold machinery (running mean/MAD,
// z-score, cooldown) and publishes a normalized strength and a would-fire
// flag per hop; none decides the final onset alone (that's internal/fusion).
package detect

import (
	"math"

	"github.com/austinkregel/local-media/musicd/internal/params"
	"github.com/austinkregel/local-media/musicd/internal/spectral"
)

const epsilon = 1e-6

// Context is the read-only per-hop input every detector consumes. It is
// assembled once by the pipeline and passed by value to Ensemble.Update.
type Context struct {
	NowMs       float64
	Frame       spectral.Frame
	FastEnv     float64
	PrevFastEnv float64
	SlowEnv     float64
}

// Result is one detector's per-hop publication (spec.md §3 "Detector state").
type Result struct {
	Strength  float64
	WouldFire bool
}

// Outputs bundles every detector's Result for one hop, in the fixed order
// the spec names them (spec.md §9: "fixed-size array ... known at compile
// time").
type Outputs struct {
	Drummer Result
	Flux    Result
	HFC     Result
	Bass    Result
	Complex Result
	Mel     Result
}

// adaptiveThreshold is the shared threshold machinery described in
// spec.md §4.4: an EMA-based running mean/MAD, a z-score gate, and a
// refractory cooldown. Every concrete detector embeds one.
type adaptiveThreshold struct {
	mean        float64
	mad         float64
	initialized bool

	hasFired   bool
	lastFireMs float64
}

// reset clears the running statistics and refractory state (spec.md §7:
// a numeric fault forces a detector's output to 0 and resets its running
// statistics for the hop it occurred on).
func (t *adaptiveThreshold) reset() {
	*t = adaptiveThreshold{}
}

// step feeds one new detection-function sample d through the shared
// threshold machinery and returns the published Result.
func (t *adaptiveThreshold) step(d float64, nowMs float64, p params.Detector) Result {
	if !isFinite(d) {
		t.reset()
		return Result{}
	}

	const statTauMs = 1000.0
	alpha := alphaFor(statTauMs, params.HopMs)

	if !t.initialized {
		t.mean = d
		t.mad = 0
		t.initialized = true
	} else {
		t.mean += alpha * (d - t.mean)
		t.mad += alpha * (math.Abs(d-t.mean) - t.mad)
	}

	z := (d - t.mean) / math.Max(epsilon, t.mad)

	cooldownOK := !t.hasFired || (nowMs-t.lastFireMs) >= p.CooldownMs
	wouldFire := z > p.Threshold && d > p.Floor && cooldownOK

	thresholdRange := 2 * p.Threshold // s=1 at ~3x threshold excess (spec.md §4.4)
	if thresholdRange <= 0 {
		thresholdRange = epsilon
	}
	strength := clamp01((z - p.Threshold) / thresholdRange)

	if wouldFire {
		t.hasFired = true
		t.lastFireMs = nowMs
	}

	return Result{Strength: strength, WouldFire: wouldFire}
}

func alphaFor(tauMs, periodMs float64) float64 {
	if tauMs <= 0 {
		return 1
	}
	return 1 - math.Exp(-periodMs/tauMs)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Ensemble owns all six detectors and advances them together, in the fixed
// order the spec lists them, once per hop.
type Ensemble struct {
	drummer Drummer
	flux    SpectralFlux
	hfc     HFC
	bass    BassBand
	complex ComplexDomain
	mel     MelFlux
}

// New constructs an Ensemble sized for the given spectral bin/mel-band
// counts (must match the internal/spectral.Analyzer the pipeline uses).
func New(numBins, numMelBands int) *Ensemble {
	return &Ensemble{
		complex: newComplexDomain(numBins),
		mel:     newMelFlux(numMelBands),
	}
}

// Reset clears every detector's running state (used on pipeline restart
// for the replay/record test harness, SPEC_FULL.md §3).
func (e *Ensemble) Reset() {
	e.drummer.reset()
	e.flux.reset()
	e.hfc.reset()
	e.bass.reset()
	e.complex.reset()
	e.mel.reset()
}

// Update advances every detector by one hop and returns their Outputs.
func (e *Ensemble) Update(ctx Context, p params.DetectorSet) Outputs {
	return Outputs{
		Drummer: e.drummer.update(ctx, p.Drummer),
		Flux:    e.flux.update(ctx, p.Flux, p.FluxBins),
		HFC:     e.hfc.update(ctx, p.HFC, p.HFCWeight),
		Bass:    e.bass.update(ctx, p.Bass, p.BassFreqHz, p.BassQ),
		Complex: e.complex.update(ctx, p.Complex),
		Mel:     e.mel.update(ctx, p.MelFlux),
	}
}
