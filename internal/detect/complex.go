package detect

import (
	"math/cmplx"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// ComplexDomain predicts each bin's expected complex value from the
// previous two frames using a constant-phase-advance model, then sums the
// magnitude of the prediction residuals (spec.md §4.4). It keeps its own
// two-frame-deep phase/magnitude history (spec.md §3: "each detector owns
// a short history"); internal/spectral only retains one frame of lookback,
// which isn't enough for a second-difference phase prediction.
type ComplexDomain struct {
	adaptiveThreshold

	prevMag   []float64
	prevPhase []float64
	prevPrevPhase []float64
	depth     int // 0, 1 or 2: how many frames of history are populated
}

func newComplexDomain(numBins int) ComplexDomain {
	return ComplexDomain{
		prevMag:       make([]float64, numBins),
		prevPhase:     make([]float64, numBins),
		prevPrevPhase: make([]float64, numBins),
	}
}

func (c *ComplexDomain) reset() {
	c.adaptiveThreshold.reset()
	c.depth = 0
	for i := range c.prevMag {
		c.prevMag[i] = 0
		c.prevPhase[i] = 0
		c.prevPrevPhase[i] = 0
	}
}

func (c *ComplexDomain) update(ctx Context, p params.Detector) Result {
	mag := ctx.Frame.Magnitude
	phase := ctx.Frame.Phase

	var d float64
	if c.depth >= 2 {
		n := len(mag)
		if len(c.prevMag) < n {
			n = len(c.prevMag)
		}
		for i := 0; i < n; i++ {
			predictedPhase := 2*c.prevPhase[i] - c.prevPrevPhase[i]
			predicted := cmplx.Rect(c.prevMag[i], predictedPhase)
			actual := cmplx.Rect(mag[i], phase[i])
			d += cmplx.Abs(actual - predicted)
		}
	}

	for i := range c.prevMag {
		if i < len(phase) {
			c.prevPrevPhase[i] = c.prevPhase[i]
			c.prevPhase[i] = phase[i]
		}
		if i < len(mag) {
			c.prevMag[i] = mag[i]
		}
	}
	if c.depth < 2 {
		c.depth++
	}

	return c.step(d, ctx.NowMs, p)
}
