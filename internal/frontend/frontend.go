// Package frontend implements the adaptive microphone front-end: hardware
// AGC, DC removal, envelope/peak/valley tracking, level mapping and the
// coarse transient flag (spec.md §4.2).
package frontend

import (
	"math"
	"sync/atomic"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// MaxGain is the top of the hardware gain index range (spec.md §3: "0..MAX_GAIN").
const MaxGain = 63

// agcConsecutiveWindows is how many consecutive windows peak must stay
// above/below target before the gain steps (spec.md §4.2, step 4). Not a
// hot-reloadable parameter: it is a discretization of the rate limit
// below, not a tuning knob named in spec.md §6.
const agcConsecutiveWindows = 8

// minGainIntervalMs rate-limits gain changes to at most one step per
// ~200ms (spec.md §4.2).
const minGainIntervalMs = 200

func alphaFor(tauMs, periodMs float64) float64 {
	if tauMs <= 0 {
		return 1
	}
	return 1 - math.Exp(-periodMs/tauMs)
}

const (
	fastTauMs = 5
	slowTauMs = 200
	dcTauMs   = 1000
	epsilon   = 1e-6
)

// Output is the per-hop result of the front-end, copied into the shared
// per-window context for downstream components (spec.md §3 "Ownership").
type Output struct {
	Level     float64 // mapped 0..1, independent of gain
	FastEnv   float64 // raw amplitude, [0,1]
	SlowEnv   float64
	Peak      float64 // raw, decaying max
	Valley    float64 // raw, decaying min
	GainIndex int
	Alive     bool
	Transient bool
	StuckGain bool // soft warning: gain unchanged while peak keeps saturating

	// PrevFastEnv is the fast envelope value from the previous hop, exposed
	// so detectors can compute a rise rate without duplicating the EMA
	// (used by the Drummer detector's rise-rate gate, spec.md §4.4).
	PrevFastEnv float64
}

// Mic is the adaptive front-end. It owns all of its state privately; the
// only output is the Output value copied out of Update.
type Mic struct {
	dc      float64
	fastEnv float64
	slowEnv float64
	peak    float64
	valley  float64

	// gainIndex is read from the capture-driving goroutine (to write back
	// to the hardware at the next window boundary, spec.md §4.2 step 4)
	// while the analysis goroutine concurrently advances it in stepAGC, so
	// it's accessed atomically rather than as a plain int.
	gainIndex atomic.Int32

	aboveCount    int
	belowCount    int
	hopsSinceGain int
	stuckStreak   int

	hopsSinceTransient int
	lastFastEnv        float64

	hopIndex uint64
}

// New constructs a Mic with zeroed envelope state and gain index 0.
func New() *Mic {
	return &Mic{}
}

// GainIndex returns the current hardware gain index. Safe to call from a
// different goroutine than the one driving Update (see gainIndex's doc).
func (m *Mic) GainIndex() int { return int(m.gainIndex.Load()) }

// Update advances the front-end by one hop (HopSize new samples, already
// DC-biased raw PCM) and returns the per-hop output.
func (m *Mic) Update(hop []int16, alive bool, p params.FrontEnd) Output {
	m.hopIndex++

	// The DC and fast-envelope EMAs are stepped once per sample below, so
	// their coefficients use the sample period, not the hop period.
	const sampleMs = 1000.0 / params.SampleRate
	dcAlpha := alphaFor(dcTauMs, sampleMs)
	fastAlpha := alphaFor(fastTauMs, sampleMs)
	slowAlpha := alphaFor(slowTauMs, params.HopMs)
	peakAttackAlpha := alphaFor(p.PeakTauMs/10, params.HopMs) // fast upward
	peakReleaseAlpha := alphaFor(p.PeakTauMs, params.HopMs)   // slow downward
	valleyAttackAlpha := alphaFor(p.ValleyTauMs/10, params.HopMs)
	valleyReleaseAlpha := alphaFor(p.ValleyTauMs, params.HopMs)

	var sumSq float64
	var hopPeak float64

	for _, raw := range hop {
		s := float64(raw) / 32768.0
		m.dc += dcAlpha * (s - m.dc)
		centered := s - m.dc
		abs := math.Abs(centered)

		m.fastEnv += fastAlpha * (abs - m.fastEnv)

		sumSq += centered * centered
		if abs > hopPeak {
			hopPeak = abs
		}
	}
	_ = sumSq // the hop's sum of squares is accumulated but not used or exposed in Output

	m.slowEnv += slowAlpha * (m.fastEnv - m.slowEnv)

	if hopPeak > m.peak {
		m.peak += peakAttackAlpha * (hopPeak - m.peak)
	} else {
		m.peak += peakReleaseAlpha * (hopPeak - m.peak)
	}
	if m.fastEnv < m.valley {
		m.valley += valleyAttackAlpha * (m.fastEnv - m.valley)
	} else {
		m.valley += valleyReleaseAlpha * (m.fastEnv - m.valley)
	}

	// Invariant: peak >= valley >= 0 (spec.md §3, §8 property 2).
	if m.valley < 0 {
		m.valley = 0
	}
	if m.peak < m.valley {
		m.peak = m.valley
	}

	m.stepAGC(p)

	level := 0.0
	if denom := m.peak - m.valley; denom > epsilon {
		level = (m.fastEnv - m.valley) / denom
	}
	level = clamp01(level)

	transient := m.stepTransient(p)

	out := Output{
		Level:       level,
		FastEnv:     m.fastEnv,
		SlowEnv:     m.slowEnv,
		Peak:        m.peak,
		Valley:      m.valley,
		GainIndex:   int(m.gainIndex.Load()),
		Alive:       alive,
		Transient:   transient,
		StuckGain:   m.stuckStreak >= agcConsecutiveWindows*4,
		PrevFastEnv: m.lastFastEnv,
	}
	m.lastFastEnv = m.fastEnv
	return out
}

// stepAGC implements spec.md §4.2 step 4: rate-limited hardware gain
// adjustment based on sustained peak saturation/underuse.
func (m *Mic) stepAGC(p params.FrontEnd) {
	m.hopsSinceGain++

	if m.peak > p.HWTargetHi {
		m.aboveCount++
	} else {
		m.aboveCount = 0
	}
	if m.peak < p.HWTargetLo {
		m.belowCount++
	} else {
		m.belowCount = 0
	}

	rateLimited := float64(m.hopsSinceGain)*params.HopMs < minGainIntervalMs

	gainIndex := int(m.gainIndex.Load())

	changed := false
	if m.aboveCount >= agcConsecutiveWindows && !rateLimited {
		if gainIndex > 0 {
			gainIndex--
			m.gainIndex.Store(int32(gainIndex))
			changed = true
		}
		m.aboveCount = 0
	} else if m.belowCount >= agcConsecutiveWindows && !rateLimited {
		if gainIndex < MaxGain {
			gainIndex++
			m.gainIndex.Store(int32(gainIndex))
			changed = true
		}
		m.belowCount = 0
	}

	if changed {
		m.hopsSinceGain = 0
		m.stuckStreak = 0
	} else if m.aboveCount >= agcConsecutiveWindows && gainIndex == 0 {
		// Gain is already at minimum but peak keeps saturating: soft warning.
		m.stuckStreak++
	} else if m.belowCount >= agcConsecutiveWindows && gainIndex == MaxGain {
		m.stuckStreak++
	} else {
		m.stuckStreak = 0
	}
}

// stepTransient implements spec.md §4.2 step 6: the coarse transient flag
// with a per-channel refractory period. hit_thresh gates the fast
// envelope against the valley-relative floor so a transient must clear
// both an attack-relative (attack_mult × slow envelope) and a
// floor-relative (hit_thresh × valley) bar.
func (m *Mic) stepTransient(p params.FrontEnd) bool {
	m.hopsSinceTransient++
	cooldownHops := int(math.Ceil(p.CooldownMs / params.HopMs))

	if m.hopsSinceTransient < cooldownHops {
		return false
	}

	risingFast := m.fastEnv > m.slowEnv*p.AttackMult
	clearsFloor := m.fastEnv > m.valley*p.HitThresh+epsilon

	if risingFast && clearsFloor {
		m.hopsSinceTransient = 0
		return true
	}
	return false
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
