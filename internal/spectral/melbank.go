package spectral

import "math"

// melFilterbank builds a triangular mel-scale filterbank of numBands
// filters over windowSize/2+1 FFT bins, spanning loHz..hiHz. Adapted from
// the teacher's internal/analysis.createMelFilterbank, generalized to take
// an explicit frequency range (spec.md §3: "spanning 50 Hz-8 kHz") instead
// of a fixed 0..Nyquist span.
func melFilterbank(numBands, windowSize, sampleRate int, loHz, hiHz float64) [][]float64 {
	bins := windowSize/2 + 1

	loMel := hzToMel(loHz)
	hiMel := hzToMel(hiHz)

	points := make([]float64, numBands+2)
	for i := range points {
		points[i] = loMel + (hiMel-loMel)*float64(i)/float64(numBands+1)
	}

	binFreqs := make([]int, numBands+2)
	for i, m := range points {
		hz := melToHz(m)
		bin := int(math.Floor((float64(windowSize) + 1) * hz / float64(sampleRate)))
		if bin < 0 {
			bin = 0
		}
		if bin >= bins {
			bin = bins - 1
		}
		binFreqs[i] = bin
	}

	banks := make([][]float64, numBands)
	for b := 0; b < numBands; b++ {
		filt := make([]float64, bins)
		left, center, right := binFreqs[b], binFreqs[b+1], binFreqs[b+2]

		for i := left; i < center; i++ {
			if center > left {
				filt[i] = float64(i-left) / float64(center-left)
			}
		}
		for i := center; i < right; i++ {
			if right > center {
				filt[i] = float64(right-i) / float64(right-center)
			}
		}
		banks[b] = filt
	}
	return banks
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}
