package detect

import "github.com/austinkregel/local-media/musicd/internal/params"

// SpectralFlux sums the half-wave-rectified rise in the whitened spectrum
// across bins (spec.md §4.4): d = Σ max(0, |X[n,k]| − |X[n−1,k]|).
type SpectralFlux struct {
	adaptiveThreshold
}

func (f *SpectralFlux) reset() { f.adaptiveThreshold.reset() }

func (f *SpectralFlux) update(ctx Context, p params.Detector, fluxBins int) Result {
	whitened := ctx.Frame.Whitened
	prev := ctx.Frame.PrevWhitened

	n := fluxBins
	if n <= 0 || n > len(whitened) {
		n = len(whitened)
	}
	if n > len(prev) {
		n = len(prev)
	}

	var d float64
	for i := 0; i < n; i++ {
		diff := whitened[i] - prev[i]
		if diff > 0 {
			d += diff
		}
	}
	return f.step(d, ctx.NowMs, p)
}
