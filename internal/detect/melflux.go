package detect

import "github.com/austinkregel/local-media/musicd/internal/params"

// melTrajectoryFrames is the trajectory-maximum filter's lookback depth
// (spec.md §4.4 "MelFlux (SuperFlux-style)"). spec.md §9 explicitly leaves
// this window unspecified ("to be tuned on-device"); 3 frames (~48ms at the
// default hop) is the value used here pending on-device tuning.
const melTrajectoryFrames = 3

// MelFlux is a SuperFlux-style detector: positive flux on mel-band
// energies, with each band's comparison baseline taken as the max of the
// previous M frames across bands b-1..b+1 rather than the immediately
// preceding frame alone. This suppresses the vibrato/tremolo false
// positives plain mel-flux produces on sustained harmonic material.
type MelFlux struct {
	adaptiveThreshold

	history [][]float64 // ring of up to melTrajectoryFrames mel-energy vectors
	next    int
	filled  int
}

func newMelFlux(numBands int) MelFlux {
	hist := make([][]float64, melTrajectoryFrames)
	for i := range hist {
		hist[i] = make([]float64, numBands)
	}
	return MelFlux{history: hist}
}

func (m *MelFlux) reset() {
	m.adaptiveThreshold.reset()
	m.next = 0
	m.filled = 0
	for _, frame := range m.history {
		for i := range frame {
			frame[i] = 0
		}
	}
}

func (m *MelFlux) update(ctx Context, p params.Detector) Result {
	mel := ctx.Frame.Mel
	numBands := len(mel)

	var d float64
	for b := 0; b < numBands; b++ {
		lo, hi := b-1, b+1
		if lo < 0 {
			lo = 0
		}
		if hi >= numBands {
			hi = numBands - 1
		}

		trajMax := 0.0
		haveAny := false
		for f := 0; f < m.filled; f++ {
			frame := m.history[f]
			for band := lo; band <= hi; band++ {
				if band >= len(frame) {
					continue
				}
				if !haveAny || frame[band] > trajMax {
					trajMax = frame[band]
					haveAny = true
				}
			}
		}

		diff := mel[b] - trajMax
		if diff > 0 {
			d += diff
		}
	}

	dst := m.history[m.next]
	copy(dst, mel)
	m.next = (m.next + 1) % len(m.history)
	if m.filled < len(m.history) {
		m.filled++
	}

	return m.step(d, ctx.NowMs, p)
}
