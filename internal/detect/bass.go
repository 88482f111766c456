package detect

import (
	"github.com/austinkregel/local-media/musicd/internal/params"
)

// BassBand is spectral flux restricted to the low end of the spectrum
// (spec.md §4.4: "spectral flux restricted to bins below ≈200Hz"). Rather
// than a hard cutoff, each bin's flux contribution is weighted by a
// resonance curve centered at bass_freq_hz with bandwidth set by bass_q
// (the classic bandpass-magnitude weighting), which both concentrates the
// detector below ≈200Hz for the default 160Hz/Q=1 and makes bass_freq_hz
// and bass_q meaningful hot-reload parameters rather than dead weight.
type BassBand struct {
	adaptiveThreshold
}

func (b *BassBand) reset() { b.adaptiveThreshold.reset() }

func (b *BassBand) update(ctx Context, p params.Detector, centerHz, q float64) Result {
	whitened := ctx.Frame.Whitened
	prev := ctx.Frame.PrevWhitened
	n := len(whitened)
	if len(prev) < n {
		n = len(prev)
	}

	freqPerBin := float64(params.SampleRate) / float64(params.WindowSize)

	var d float64
	for i := 0; i < n; i++ {
		diff := whitened[i] - prev[i]
		if diff <= 0 {
			continue
		}
		freq := float64(i) * freqPerBin
		d += diff * bassWeight(freq, centerHz, q)
	}
	return b.step(d, ctx.NowMs, p)
}

// bassWeight is a bandpass resonance magnitude weighting (RBJ cookbook
// style): 1 at freq == centerHz, falling off on both sides at a rate set
// by q.
func bassWeight(freq, centerHz, q float64) float64 {
	if freq <= 0 || centerHz <= 0 {
		return 0
	}
	x := q * (freq/centerHz - centerHz/freq)
	return 1 / (1 + x*x)
}
