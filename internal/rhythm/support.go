package rhythm

import (
	"math"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// applyOnsetSupport checks this hop's onset (if any) against every active
// hypothesis's predicted next beat and records a match within match_tol_ms
// as support (spec.md §4.6: "supports bump score on matching onsets").
func (t *Tracker) applyOnsetSupport(hasOnset bool, p params.Rhythm) {
	for i := range t.hyps {
		t.hyps[i].HasSupport = false
	}
	if !hasOnset {
		return
	}

	for i := range t.hyps {
		h := &t.hyps[i]
		if !h.Active {
			continue
		}
		period := h.periodMs()
		if period <= 0 {
			continue
		}

		// The phase accumulator already tracks elapsed time since the last
		// beat boundary, so the onset's offset from the nearest predicted
		// beat is just how far that accumulator sits from a period
		// boundary at the moment the onset arrives.
		deviation := signedWrap(h.PhaseMs, period)

		if math.Abs(deviation) <= p.MatchTolMs {
			h.HasSupport = true
			h.LastSupportMs = t.nowMs
			h.ConsecutiveSupports++
			h.Score += p.ConfInc

			if i == t.lockIdx {
				alpha := phaseAlphaBase / (1 + phaseAlphaConfidenceScale*t.confidence)
				h.PhaseMs = wrap(h.PhaseMs+alpha*deviation, period)
				t.confidence = clamp01(t.confidence + p.ConfInc)
			}
		} else {
			h.ConsecutiveSupports = 0
		}
	}
}

// decayHypothesisScores applies the continuous background score decay
// described loosely as "misses decay score" in spec.md §4.6.
func (t *Tracker) decayHypothesisScores() {
	alpha := alphaFor(hypothesisScoreDecayTauMs, params.HopMs)
	for i := range t.hyps {
		if t.hyps[i].Active && !t.hyps[i].HasSupport {
			t.hyps[i].Score -= alpha * t.hyps[i].Score
		}
	}
}

// applySilenceHalving halves a hypothesis's score once it has gone
// silence_half_ms without support (spec.md §4.6).
func (t *Tracker) applySilenceHalving(p params.Rhythm) {
	for i := range t.hyps {
		h := &t.hyps[i]
		if !h.Active || h.HasSupport {
			continue
		}
		if t.nowMs-h.LastSupportMs >= p.SilenceHalfMs {
			h.Score *= 0.5
			h.LastSupportMs = t.nowMs
		}
	}
}

// checkActivation promotes a hypothesis to LOCKED once it has sustained
// score ≥ activate_thresh for min_beats consecutive matches (spec.md §4.6).
func (t *Tracker) checkActivation(p params.Rhythm) {
	for i := range t.hyps {
		h := &t.hyps[i]
		if !h.Active {
			continue
		}
		if h.Score >= p.ActivateThresh && h.ConsecutiveSupports >= p.MinBeats {
			t.state = StateLocked
			t.lockIdx = i
			t.confidence = clamp01(p.ActivateThresh)
			return
		}
	}
}

// checkOvertake allows a different, strongly-supported hypothesis to take
// over the lock after min_beats independent supports (spec.md §4.6:
// "sudden tempo jumps ... allowing a new hypothesis to overtake the
// current lock only after MIN_BEATS independent supports").
func (t *Tracker) checkOvertake(p params.Rhythm) {
	for i := range t.hyps {
		if i == t.lockIdx || !t.hyps[i].Active {
			continue
		}
		if t.hyps[i].ConsecutiveSupports >= p.MinBeats && t.hyps[i].Score > t.hyps[t.lockIdx].Score {
			t.lockIdx = i
			t.state = StateLocked
		}
	}
}

// advanceLockedPhase advances the locked hypothesis's phase accumulator by
// one hop and reports whether it wrapped (a beat event, spec.md §4.6:
// "Beat events are emitted at zero-crossings of the internal phase
// accumulator"). A wrap without support in the preceding hop costs
// confidence and moves the tracker into COASTING.
func (t *Tracker) advanceLockedPhase(p params.Rhythm) bool {
	h := &t.hyps[t.lockIdx]
	period := h.periodMs()
	if period <= 0 {
		return false
	}

	h.PhaseMs += params.HopMs
	wrapped := h.PhaseMs >= period
	if wrapped {
		h.PhaseMs = wrap(h.PhaseMs, period)
	}

	if wrapped {
		if !h.HasSupport {
			t.confidence = clamp01(t.confidence - p.ConfDec)
			t.state = StateCoasting
		} else if t.state == StateCoasting {
			t.state = StateLocked
		}
	}
	return wrapped
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
