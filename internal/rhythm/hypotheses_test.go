package rhythm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// TestMergePairPrefersFasterWhenSlowerNotConfirmed covers the "otherwise
// prefer the faster" half of spec.md §4.6: the slower hypothesis has
// fewer consecutive supports than the faster one, so it loses regardless
// of promote_thresh.
func TestMergePairPrefersFasterWhenSlowerNotConfirmed(t *testing.T) {
	tr := New()
	p := params.Default().Rhythm

	tr.hyps[0] = Hypothesis{Active: true, BPM: 60, Score: 5, ConsecutiveSupports: 1}
	tr.hyps[1] = Hypothesis{Active: true, BPM: 120, Score: 5, ConsecutiveSupports: 6}

	tr.mergePair(0, 1, p)

	assert.False(t, tr.hyps[0].Active)
	assert.True(t, tr.hyps[1].Active)
	assert.InDelta(t, 10, tr.hyps[1].Score, 1e-9)
}

// TestMergePairPromoteThreshGatesSlowerWin exercises promote_thresh as a
// live knob: with the slower hypothesis equally well-confirmed but
// trailing the faster one's score, a small promote_thresh rejects the
// slower hypothesis while a larger one admits it (spec.md §4.6's "bias
// toward whichever has stronger per-beat onset alignment").
func TestMergePairPromoteThreshGatesSlowerWin(t *testing.T) {
	p := params.Default().Rhythm

	newPair := func() *Tracker {
		tr := New()
		tr.hyps[0] = Hypothesis{Active: true, BPM: 60, Score: 4, ConsecutiveSupports: 6}
		tr.hyps[1] = Hypothesis{Active: true, BPM: 120, Score: 5, ConsecutiveSupports: 6}
		return tr
	}

	strict := p
	strict.PromoteThresh = 0.1
	trStrict := newPair()
	trStrict.mergePair(0, 1, strict)
	assert.False(t, trStrict.hyps[0].Active, "slower hypothesis trails by more than promote_thresh, faster should win")
	assert.True(t, trStrict.hyps[1].Active)

	lenient := p
	lenient.PromoteThresh = 2.0
	trLenient := newPair()
	trLenient.mergePair(0, 1, lenient)
	assert.True(t, trLenient.hyps[0].Active, "slower hypothesis is within promote_thresh and equally confirmed, it should win")
	assert.False(t, trLenient.hyps[1].Active)
}
