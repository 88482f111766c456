package detect

import (
	"math"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// hfcSuppressorTauMs is the time constant of the slow running HFC mean
// subtracted out before thresholding (spec.md §4.4: "sustained-signal
// suppressor that subtracts a slow running HFC mean"). Not itself a named
// spec.md §6 parameter, so fixed here rather than exposed for hot-reload.
const hfcSuppressorTauMs = 2000.0

// HFC (high-frequency content) weights each bin's magnitude by its bin
// index, raised to hfc_weight (1.0 recovers the classical linear HFC
// weighting; spec.md names hfc_weight as a tunable but leaves its exact
// form to the implementation, like the other Open Questions in spec.md §9).
// A slow running mean of the raw HFC value is subtracted before the value
// reaches the shared adaptive threshold, suppressing sustained harmonic
// material per spec.md §4.4.
type HFC struct {
	adaptiveThreshold
	slowMean    float64
	initialized bool
}

func (h *HFC) reset() {
	h.adaptiveThreshold.reset()
	h.slowMean = 0
	h.initialized = false
}

func (h *HFC) update(ctx Context, p params.Detector, weight float64) Result {
	mag := ctx.Frame.Magnitude

	var raw float64
	for k, m := range mag {
		w := float64(k)
		if weight != 1 {
			w = math.Pow(w, weight)
		}
		raw += w * m
	}

	alpha := alphaFor(hfcSuppressorTauMs, params.HopMs)
	if !h.initialized {
		h.slowMean = raw
		h.initialized = true
	} else {
		h.slowMean += alpha * (raw - h.slowMean)
	}

	d := raw - h.slowMean
	if d < 0 {
		d = 0
	}
	return h.step(d, ctx.NowMs, p)
}
