// Package rhythm implements the autocorrelation-based tempo and beat
// tracker (spec.md §4.6): a decaying onset-envelope buffer, a small
// fixed-capacity slab of BPM hypotheses, a {IDLE, LISTENING, LOCKED,
// COASTING} state machine, and phase-locked beat event emission.
package rhythm

import (
	"math"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// State is the rhythm tracker's state machine tag (spec.md §4.6, §9: "a
// tagged variant; transitions are explicit in one place").
type State int

const (
	StateIdle State = iota
	StateListening
	StateLocked
	StateCoasting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateLocked:
		return "locked"
	case StateCoasting:
		return "coasting"
	default:
		return "unknown"
	}
}

// envelopeDecayTauMs is the onset-envelope spike decay constant (spec.md
// §4.6: "decay τ ≈ 300 ms").
const envelopeDecayTauMs = 300.0

// hypothesisScoreDecayTauMs paces the continuous background decay applied
// to every active hypothesis's score between explicit silence-half
// halvings, so unsupported hypotheses fade rather than staying pinned at
// their last value (spec.md §4.6: "misses decay score", left in general
// terms).
const hypothesisScoreDecayTauMs = 2000.0

// phaseAlphaBase and phaseAlphaConfidenceScale shape the confidence-
// dependent phase correction gain (spec.md §4.6: "α depending on
// confidence (higher confidence → smaller α for stability)"). The exact
// curve isn't named in spec.md, so a simple inverse-confidence form is
// used: alpha = base / (1 + scale*confidence).
const (
	phaseAlphaBase           = 0.35
	phaseAlphaConfidenceScale = 3.0
)

// harmonicMatchFrac is how close (as a fraction of the faster hypothesis's
// BPM) the slower BPM times an integer ratio must land to qualify for
// harmonic merging (spec.md §4.6: "within BPM_MATCH_TOL"). It is a fixed
// constant; match_tol_ms is not used for this check.
const harmonicMatchFrac = 0.05

// Hypothesis is one candidate tempo/phase the tracker is maintaining
// (spec.md §3 "Rhythm state"). Hypotheses live in a fixed-capacity slab,
// addressed by index, never by pointer (spec.md §9).
type Hypothesis struct {
	Active bool

	BPM     float64
	PhaseMs float64 // position within the current beat period, [0, period)
	Score   float64

	AgeWindows           int
	LastSupportMs        float64
	HasSupport           bool
	ConsecutiveSupports  int
}

func (h *Hypothesis) periodMs() float64 {
	if h.BPM <= 0 {
		return 0
	}
	return 60000.0 / h.BPM
}

// BeatEvent is emitted at zero-crossings of the locked hypothesis's phase
// accumulator (spec.md §4.6, §6 "Beat events").
type BeatEvent struct {
	TimestampMs float64
	BPM         float64
	Confidence  float64
}

// Output is the per-hop rhythm snapshot the telemetry assembler consumes
// (spec.md §4.7: "BPM, phase (0..1 normalized), confidence, beat-event flag").
type Output struct {
	State       State
	BPM         float64
	PhaseNorm   float64 // phase / period, in [0,1)
	Confidence  float64
	Beat        bool
	BeatEvent   BeatEvent
}

// Tracker owns all rhythm state privately (spec.md §3 "Ownership").
type Tracker struct {
	state State

	envelope [params.EnvelopeLen]float64
	envHead  int // index of the oldest sample / next write slot
	envCur   float64
	scratch  [params.EnvelopeLen]float64 // autocorrelation scratch, reused

	hyps     [params.MaxHypotheses]Hypothesis
	lockIdx  int // -1 if no hypothesis is locked

	confidence float64

	sinceLastOnsetMs  float64
	sinceLastUpdateMs float64

	nowMs float64
}

// New constructs a Tracker in the IDLE state.
func New() *Tracker {
	return &Tracker{lockIdx: -1}
}

// Reset returns the tracker to its startup state (pipeline restart,
// SPEC_FULL.md §3 replay harness).
func (t *Tracker) Reset() {
	*t = Tracker{lockIdx: -1}
}

// State returns the tracker's current state machine tag.
func (t *Tracker) State() State {
	return t.state
}

// Hypotheses returns a snapshot of every active hypothesis in the slab,
// for telemetry/debugging introspection (mirrors the teacher's
// GetStatus/GetItems read-accessor convention on its stateful managers).
// The returned slice is a copy; mutating it has no effect on the tracker.
func (t *Tracker) Hypotheses() []Hypothesis {
	out := make([]Hypothesis, 0, params.MaxHypotheses)
	for _, h := range t.hyps {
		if h.Active {
			out = append(out, h)
		}
	}
	return out
}

// Update advances the tracker by one hop. hasOnset/onsetStrength describe
// the onset fusion produced this hop, if any (hasOnset == false otherwise).
func (t *Tracker) Update(nowMs float64, hasOnset bool, onsetStrength float64, p params.Rhythm) Output {
	t.nowMs = nowMs

	t.decayEnvelope()
	if hasOnset {
		t.envCur += onsetStrength
		t.sinceLastOnsetMs = 0
	} else {
		t.sinceLastOnsetMs += params.HopMs
	}
	t.pushEnvelope()

	if t.sinceLastOnsetMs >= p.SilenceGraceMs && t.state != StateIdle {
		t.enterIdle()
	}

	if t.state == StateIdle || t.state == StateListening {
		t.sinceLastUpdateMs += params.HopMs
		if t.sinceLastUpdateMs >= p.UpdateIntervalMs {
			t.sinceLastUpdateMs = 0
			t.updateHypotheses(p)
			t.mergeHarmonics(p)
		}
	}

	t.applyOnsetSupport(hasOnset, p)
	t.decayHypothesisScores()
	t.applySilenceHalving(p)

	if t.state == StateIdle || t.state == StateListening {
		t.checkActivation(p)
	}

	beat := BeatEvent{}
	firedBeat := false
	if t.state == StateLocked || t.state == StateCoasting {
		firedBeat = t.advanceLockedPhase(p)
		if firedBeat {
			beat = BeatEvent{TimestampMs: nowMs, BPM: t.hyps[t.lockIdx].BPM, Confidence: t.confidence}
		}
		t.checkOvertake(p)
		if t.confidence < p.DeactivateThresh {
			t.state = StateListening
			t.lockIdx = -1
		}
	}

	for i := range t.hyps {
		if t.hyps[i].Active {
			t.hyps[i].AgeWindows++
		}
	}

	out := Output{State: t.state, Confidence: t.confidence, Beat: firedBeat, BeatEvent: beat}
	if t.lockIdx >= 0 {
		h := &t.hyps[t.lockIdx]
		out.BPM = h.BPM
		if period := h.periodMs(); period > 0 {
			out.PhaseNorm = h.PhaseMs / period
		}
	}
	return out
}

func (t *Tracker) enterIdle() {
	t.state = StateIdle
	t.lockIdx = -1
	t.confidence = 0
	for i := range t.hyps {
		t.hyps[i] = Hypothesis{}
	}
}

func (t *Tracker) decayEnvelope() {
	alpha := alphaFor(envelopeDecayTauMs, params.HopMs)
	t.envCur -= alpha * t.envCur
}

func (t *Tracker) pushEnvelope() {
	t.envelope[t.envHead] = t.envCur
	t.envHead = (t.envHead + 1) % params.EnvelopeLen
}

// unwrap returns the envelope in chronological order (oldest first) into
// the preallocated scratch buffer.
func (t *Tracker) unwrap() []float64 {
	n := params.EnvelopeLen
	for i := 0; i < n; i++ {
		t.scratch[i] = t.envelope[(t.envHead+i)%n]
	}
	return t.scratch[:]
}

func alphaFor(tauMs, periodMs float64) float64 {
	if tauMs <= 0 {
		return 1
	}
	return 1 - math.Exp(-periodMs/tauMs)
}

func tempoPrior(bpm, centerBPM, width float64) float64 {
	if bpm <= 0 || width <= 0 {
		return 0
	}
	x := (math.Log(bpm) - math.Log(centerBPM)) / width
	return math.Exp(-0.5 * x * x)
}

// wrap maps x into [0, period).
func wrap(x, period float64) float64 {
	if period <= 0 {
		return 0
	}
	y := math.Mod(x, period)
	if y < 0 {
		y += period
	}
	return y
}

// signedWrap maps x into (-period/2, period/2].
func signedWrap(x, period float64) float64 {
	w := wrap(x, period)
	if w > period/2 {
		w -= period
	}
	return w
}
