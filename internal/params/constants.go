package params

// Fixed pipeline geometry (spec.md §3, §4.1). These are compile-time
// constants, not hot-reloadable parameters: changing window/hop size
// changes the size of every static buffer in the pipeline.
const (
	// SampleRate is the PDM capture rate in Hz.
	SampleRate = 16000
	// WindowSize is the analysis window length in samples (50% overlap).
	WindowSize = 512
	// HopSize is the stride between successive windows in samples.
	HopSize = WindowSize / 2
	// RingWindows is the minimum ring capacity in whole windows (spec.md §4.1).
	RingWindows = 4
	// DeadInputMs is how long all-zero input must persist before the dead
	// input flag latches (spec.md §4.1).
	DeadInputMs = 200
	// HopMs is the wall-clock duration of one hop at SampleRate.
	HopMs = float64(HopSize) * 1000.0 / float64(SampleRate)

	// EnvelopeLen is the rhythm tracker's onset-envelope ring capacity
	// (spec.md §3: "circular buffer ... covering ≥ 8 s"; spec.md §5's
	// memory bound names "≤ 512 entries" directly, and 512 hops at the
	// default HopMs (~16ms) covers just over 8s).
	EnvelopeLen = 512

	// MaxHypotheses bounds the rhythm hypothesis slab (spec.md §6
	// k_hypotheses range is 1..8; this sizes the fixed-capacity array
	// regardless of the currently configured k_hypotheses).
	MaxHypotheses = 8
)
