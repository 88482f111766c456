package rhythm

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

type candidate struct {
	bpm   float64
	score float64
}

// updateHypotheses runs the autocorrelation peak search (spec.md §4.6)
// over the onset envelope and folds the resulting candidates into the
// hypothesis slab: matching an existing hypothesis refreshes it, an empty
// slot adopts a new one, and a full slab with no match replaces its
// weakest hypothesis if the candidate scores higher.
func (t *Tracker) updateHypotheses(p params.Rhythm) {
	candidates := t.autocorrelationPeaks(p)

	for _, c := range candidates {
		if idx := t.findMatchingHypothesis(c.bpm, p); idx >= 0 {
			h := &t.hyps[idx]
			h.BPM = blendBPM(h.BPM, c.bpm)
			h.Score = math.Max(h.Score, c.score)
			continue
		}

		if slot := t.freeSlot(p); slot >= 0 {
			t.hyps[slot] = Hypothesis{Active: true, BPM: c.bpm, Score: c.score}
			continue
		}

		if weakest, weakestScore := t.weakestHypothesis(p); weakest >= 0 && c.score > weakestScore {
			t.hyps[weakest] = Hypothesis{Active: true, BPM: c.bpm, Score: c.score}
		}
	}
}

func blendBPM(existing, candidate float64) float64 {
	return existing*0.7 + candidate*0.3
}

func (t *Tracker) freeSlot(p params.Rhythm) int {
	limit := p.KHypotheses
	if limit <= 0 || limit > params.MaxHypotheses {
		limit = params.MaxHypotheses
	}
	for i := 0; i < limit; i++ {
		if !t.hyps[i].Active {
			return i
		}
	}
	return -1
}

func (t *Tracker) weakestHypothesis(p params.Rhythm) (int, float64) {
	limit := p.KHypotheses
	if limit <= 0 || limit > params.MaxHypotheses {
		limit = params.MaxHypotheses
	}
	idx := -1
	lowest := math.Inf(1)
	for i := 0; i < limit; i++ {
		if i == t.lockIdx {
			continue // never evict the currently locked hypothesis
		}
		if t.hyps[i].Active && t.hyps[i].Score < lowest {
			lowest = t.hyps[i].Score
			idx = i
		}
	}
	return idx, lowest
}

func (t *Tracker) findMatchingHypothesis(bpm float64, p params.Rhythm) int {
	tol := bpmTolerance(bpm, p.MatchTolMs)
	best := -1
	bestDiff := math.Inf(1)
	for i := range t.hyps {
		if !t.hyps[i].Active {
			continue
		}
		diff := math.Abs(t.hyps[i].BPM - bpm)
		if diff <= tol && diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	return best
}

// bpmTolerance converts the phase-matching tolerance match_tol_ms into a
// BPM-space tolerance by treating it as a fraction of the beat period at
// the candidate BPM (spec.md names match_tol_ms in ms for onset-to-beat
// phase matching; reused here in the same spirit for candidate/hypothesis
// BPM matching, since spec.md §4.6 uses "BPM_MATCH_TOL" without defining a
// separate parameter for it).
func bpmTolerance(bpm, matchTolMs float64) float64 {
	period := 60000.0 / bpm
	if period <= 0 {
		return 0
	}
	frac := matchTolMs / period
	return bpm * frac
}

// autocorrelationPeaks computes the onset-envelope autocorrelation over
// the configured BPM range and returns up to KHypotheses local maxima,
// scored by peak height times the log-BPM tempo prior (spec.md §4.6).
func (t *Tracker) autocorrelationPeaks(p params.Rhythm) []candidate {
	env := t.unwrap()
	n := len(env)

	lagMin := int(60000.0 / p.BPMMax / params.HopMs)
	lagMax := int(60000.0 / p.BPMMin / params.HopMs)
	if lagMin < 1 {
		lagMin = 1
	}
	if lagMax >= n {
		lagMax = n - 1
	}
	if lagMax <= lagMin {
		return nil
	}

	corr := make([]float64, lagMax+1)
	for lag := lagMin; lag <= lagMax; lag++ {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += env[i] * env[i+lag]
		}
		corr[lag] = sum
	}

	// Z-score the correlogram over its search range before scoring peaks,
	// so a quiet hop's small-magnitude correlation values compete on the
	// same footing as a loud hop's: the tempo prior multiplies a relative
	// (not absolute) peak height.
	mean, stddev := stat.MeanStdDev(corr[lagMin:lagMax+1], nil)
	if stddev <= 0 {
		stddev = 1
	}

	var peaks []candidate
	for lag := lagMin + 1; lag < lagMax; lag++ {
		if corr[lag] <= corr[lag-1] || corr[lag] <= corr[lag+1] {
			continue
		}
		z := (corr[lag] - mean) / stddev
		if z <= 0 {
			continue
		}
		bpm := 60000.0 / (float64(lag) * params.HopMs)
		score := z * tempoPrior(bpm, p.PriorCenterBPM, p.PriorWidth)
		if score <= 0 {
			continue
		}
		peaks = append(peaks, candidate{bpm: bpm, score: score})
	}

	sort.Slice(peaks, func(i, j int) bool { return peaks[i].score > peaks[j].score })

	limit := p.KHypotheses
	if limit <= 0 || limit > params.MaxHypotheses {
		limit = params.MaxHypotheses
	}
	if len(peaks) > limit {
		peaks = peaks[:limit]
	}
	return peaks
}

// mergeHarmonics folds hypotheses related by a 2:1 (mandatory, spec.md
// §4.6) or 3:1 (optional, spec.md §9) ratio into the better-supported one.
func (t *Tracker) mergeHarmonics(p params.Rhythm) {
	ratios := []float64{2.0, 3.0}

	for i := range t.hyps {
		if !t.hyps[i].Active {
			continue
		}
		for j := range t.hyps {
			if i == j || !t.hyps[j].Active {
				continue
			}
			for _, ratio := range ratios {
				if !withinHarmonicTol(t.hyps[i].BPM, t.hyps[j].BPM, ratio) {
					continue
				}
				t.mergePair(i, j, p)
			}
		}
	}
}

func withinHarmonicTol(a, b, ratio float64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	expected := a * ratio
	return math.Abs(expected-b)/b <= harmonicMatchFrac
}

// mergePair folds the slower of the pair into the faster one, or vice
// versa, preferring the slower hypothesis only when its own beat
// alignment is itself strongly confirmed — at least as much consecutive
// support as the faster one — and its cumulative score trails the faster one's by no
// more than promote_thresh (spec.md §4.6: "merge ... into the one with
// higher cumulative support and a PROMOTE_THRESH bias toward whichever has
// stronger per-beat onset alignment ... prefer the slower one only if its
// beats are strongly confirmed; otherwise prefer the faster").
func (t *Tracker) mergePair(i, j int, p params.Rhythm) {
	a, b := &t.hyps[i], &t.hyps[j]

	slower, faster := a, b
	slowerIdx, fasterIdx := i, j
	if b.BPM < a.BPM {
		slower, faster, slowerIdx, fasterIdx = b, a, j, i
	}

	strongSlower := slower.ConsecutiveSupports >= faster.ConsecutiveSupports &&
		slower.Score+p.PromoteThresh >= faster.Score

	winner, loser, winnerIdx, loserIdx := faster, slower, fasterIdx, slowerIdx
	if strongSlower {
		winner, loser, winnerIdx, loserIdx = slower, faster, slowerIdx, fasterIdx
	}

	winner.Score += loser.Score
	if t.lockIdx == loserIdx {
		t.lockIdx = winnerIdx
	}
	*loser = Hypothesis{}
}
