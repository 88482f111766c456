// Package spectral is the single shared spectral-analysis stage
// (spec.md §4.3): one windowed real FFT per analysis window, producing a
// magnitude spectrum, a whitened spectrum, and mel-band energies. Every
// detector in internal/detect reads from the Frame this package produces;
// no other package performs an FFT.
package spectral

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

const (
	numBins = params.WindowSize/2 + 1

	// melLowHz and melHighHz bound the mel filterbank (spec.md §3:
	// "spanning 50 Hz-8 kHz").
	melLowHz  = 50.0
	melHighHz = 8000.0

	// whitenTauMs is the per-bin running-mean time constant for the
	// whitened spectrum (spec.md §4.3).
	whitenTauMs = 1000.0

	whitenFloor = 1e-6
)

// Frame is the per-window spectral snapshot shared read-only with every
// detector (spec.md §3 "Spectral frame"). All slices correspond to the
// same window; Frame is never mutated once returned from Process.
type Frame struct {
	Magnitude     []float64 // N/2+1 bins
	PrevMagnitude []float64
	Whitened      []float64 // magnitude / slowly-adapting per-bin mean
	PrevWhitened  []float64
	Mel           []float64 // numMelBands triangular filter energies
	Phase         []float64 // N/2+1 wrapped bin phase, radians
	PrevPhase     []float64
}

// Analyzer performs the windowed FFT and derived analyses. It owns all of
// its state privately (spec.md §3 "Ownership"); detectors only ever see
// the Frame value copied out of Process.
type Analyzer struct {
	fft      *fourier.FFT
	win      []float64
	melBanks [][]float64
	numMel   int

	runningMean []float64 // whitening denominator, one per bin

	prevMagnitude []float64
	prevWhitened  []float64
	prevPhase     []float64

	scratch []float64 // windowed samples, reused across calls
}

// New constructs an Analyzer for the given mel-band count (spec.md §6
// mel_bands, default 24).
func New(numMelBands int) *Analyzer {
	if numMelBands <= 0 {
		numMelBands = 24
	}
	a := &Analyzer{
		fft:           fourier.NewFFT(params.WindowSize),
		win:           window.Hann(make([]float64, params.WindowSize)),
		melBanks:      melFilterbank(numMelBands, params.WindowSize, params.SampleRate, melLowHz, melHighHz),
		numMel:        numMelBands,
		runningMean:   make([]float64, numBins),
		prevMagnitude: make([]float64, numBins),
		prevWhitened:  make([]float64, numBins),
		prevPhase:     make([]float64, numBins),
		scratch:       make([]float64, params.WindowSize),
	}
	for i := range a.runningMean {
		a.runningMean[i] = whitenFloor
	}
	return a
}

// Process computes the spectral Frame for one window of PCM samples. The
// window must be exactly params.WindowSize samples (spec.md §4.3).
func (a *Analyzer) Process(samples []int16) Frame {
	for i, s := range samples {
		a.scratch[i] = float64(s) / 32768.0 * a.win[i]
	}

	coeffs := a.fft.Coefficients(nil, a.scratch)

	magnitude := make([]float64, numBins)
	phase := make([]float64, numBins)
	whitened := make([]float64, numBins)

	whitenAlpha := alphaFor(whitenTauMs, params.HopMs)

	for i := 0; i < numBins; i++ {
		c := coeffs[i]
		mag := cmplx.Abs(c)
		magnitude[i] = mag
		phase[i] = cmplx.Phase(c)

		a.runningMean[i] += whitenAlpha * (mag - a.runningMean[i])
		denom := a.runningMean[i]
		if denom < whitenFloor {
			denom = whitenFloor
		}
		whitened[i] = mag / denom
	}

	mel := make([]float64, a.numMel)
	for b := 0; b < a.numMel; b++ {
		var energy float64
		filt := a.melBanks[b]
		for i := 0; i < len(filt) && i < len(magnitude); i++ {
			energy += magnitude[i] * magnitude[i] * filt[i]
		}
		mel[b] = energy
	}

	frame := Frame{
		Magnitude:     magnitude,
		PrevMagnitude: a.prevMagnitude,
		Whitened:      whitened,
		PrevWhitened:  a.prevWhitened,
		Mel:           mel,
		Phase:         phase,
		PrevPhase:     a.prevPhase,
	}

	a.prevMagnitude = magnitude
	a.prevWhitened = whitened
	a.prevPhase = phase

	return frame
}

// NumBins returns N/2+1, the bin count of every magnitude/whitened/phase slice.
func NumBins() int { return numBins }

func alphaFor(tauMs, periodMs float64) float64 {
	if tauMs <= 0 {
		return 1
	}
	return 1 - math.Exp(-periodMs/tauMs)
}
