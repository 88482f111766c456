// Package params defines the tunable parameter bundle consumed by the
// analysis pipeline (spec.md §6) and validates it against declared ranges
// before it is allowed to replace a running bundle.
package params

import "fmt"

// Range describes the inclusive bounds a parameter must fall within.
type Range struct {
	Min, Max float64
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// FrontEnd holds the adaptive microphone front-end parameters (spec.md §4.2).
type FrontEnd struct {
	HWTargetLo  float64 // hw_target_lo
	HWTargetHi  float64 // hw_target_hi
	PeakTauMs   float64 // peak_tau_ms
	ValleyTauMs float64 // valley_tau_ms
	AttackMult  float64 // attack_mult
	HitThresh   float64 // hit_thresh
	CooldownMs  float64 // cooldown_ms
}

// Detector holds the per-detector adaptive-threshold parameters shared by
// every member of the ensemble (spec.md §4.4).
type Detector struct {
	Threshold  float64
	Floor      float64
	CooldownMs float64
}

// DetectorSet holds one Detector config per ensemble member plus the
// detector-specific extras named in spec.md §6.
type DetectorSet struct {
	Drummer      Detector
	Flux         Detector
	HFC          Detector
	Bass         Detector
	Complex      Detector
	MelFlux      Detector
	HFCWeight    float64 // hfc_weight
	BassFreqHz   float64 // bass_freq_hz
	BassQ        float64 // bass_q
	FluxBins     int     // flux_bins
	MelBands     int     // mel_bands
}

// Fusion holds the ensemble-fusion parameters (spec.md §4.5).
type Fusion struct {
	WeightDrummer    float64
	WeightFlux       float64
	WeightHFC        float64
	WeightBass       float64
	WeightComplex    float64
	WeightMel        float64
	AgreeK           float64 // agree_k
	FusionThreshold  float64
	FusionCooldownMs float64 // fusion_cooldown_ms
}

// Rhythm holds the tempo/beat tracker parameters (spec.md §4.6).
type Rhythm struct {
	BPMMin           float64
	BPMMax           float64
	UpdateIntervalMs float64
	KHypotheses      int
	PriorCenterBPM   float64
	PriorWidth       float64
	MatchTolMs       float64
	ActivateThresh   float64
	DeactivateThresh float64
	MinBeats         int
	ConfInc          float64
	ConfDec          float64
	SilenceGraceMs   float64
	SilenceHalfMs    float64
	PromoteThresh    float64
}

// Bundle is the full set of parameters read at construction and on
// explicit reload (spec.md §6).
type Bundle struct {
	FrontEnd  FrontEnd
	Detectors DetectorSet
	Fusion    Fusion
	Rhythm    Rhythm
}

// Default returns the default parameter bundle, matching the values named
// in spec.md §6.
func Default() Bundle {
	return Bundle{
		FrontEnd: FrontEnd{
			HWTargetLo:  0.15,
			HWTargetHi:  0.35,
			PeakTauMs:   500,
			ValleyTauMs: 500,
			AttackMult:  1.1,
			HitThresh:   1.7,
			CooldownMs:  40,
		},
		Detectors: DetectorSet{
			Drummer: Detector{Threshold: 2.0, Floor: 0.02, CooldownMs: 60},
			Flux:    Detector{Threshold: 2.0, Floor: 0.02, CooldownMs: 60},
			HFC:     Detector{Threshold: 2.0, Floor: 0.02, CooldownMs: 60},
			Bass:    Detector{Threshold: 2.0, Floor: 0.02, CooldownMs: 80},
			Complex: Detector{Threshold: 2.0, Floor: 0.02, CooldownMs: 60},
			MelFlux: Detector{Threshold: 2.0, Floor: 0.02, CooldownMs: 60},
			HFCWeight:  1.0,
			BassFreqHz: 160,
			BassQ:      1.0,
			FluxBins:   WindowSize/2 + 1,
			MelBands:   24,
		},
		Fusion: Fusion{
			WeightDrummer:    1.0,
			WeightFlux:       1.0,
			WeightHFC:        0.8,
			WeightBass:       0.8,
			WeightComplex:    0.8,
			WeightMel:        1.0,
			AgreeK:           0.2,
			FusionThreshold:  1.0,
			FusionCooldownMs: 40,
		},
		Rhythm: Rhythm{
			BPMMin:           60,
			BPMMax:           200,
			UpdateIntervalMs: 1000,
			KHypotheses:      4,
			PriorCenterBPM:   120,
			PriorWidth:       0.5,
			MatchTolMs:       70,
			ActivateThresh:   1.2,
			DeactivateThresh: 0.3,
			MinBeats:         4,
			ConfInc:          0.1,
			ConfDec:          0.1,
			SilenceGraceMs:   2000,
			SilenceHalfMs:    4000,
			PromoteThresh:    0.2,
		},
	}
}

// Declared ranges for every validated field, named analogously to spec.md §6.
var (
	rangeUnitInterval = Range{0, 1}
	rangeTauMs        = Range{1, 5000}
	rangeAttackMult   = Range{1.0, 4.0}
	rangeHitThresh    = Range{0.5, 5.0}
	rangeCooldownMs   = Range{0, 2000}
	rangeDetThresh    = Range{1.5, 3.0}
	rangeDetFloor     = Range{0, 1}
	rangeWeight       = Range{0, 4}
	rangeAgreeK       = Range{0, 2}
	rangeFusionThresh = Range{0, 10}
	rangeBassFreq     = Range{40, 400}
	rangeBassQ        = Range{0.1, 10}
	rangeMelBands     = Range{8, 64}
	rangeBPM          = Range{30, 300}
	rangeUpdateMs     = Range{200, 5000}
	rangeKHyp         = Range{1, 8}
	rangePriorWidth   = Range{0.1, 2.0}
	rangeMatchTol     = Range{10, 300}
	rangeActivate     = Range{0, 10}
	rangeMinBeats     = Range{1, 16}
	rangeConfStep     = Range{0, 1}
	rangeSilenceMs    = Range{200, 30000}
	rangePromote      = Range{0, 2}
)

// ValidationError reports every parameter that failed its declared range.
// A ValidationError means the whole reload is rejected (spec.md §7).
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter bundle rejected: %d violation(s): %v", len(e.Violations), e.Violations)
}

func check(v []string, name string, value float64, r Range) []string {
	if !r.contains(value) {
		v = append(v, fmt.Sprintf("%s=%.4g out of range [%.4g,%.4g]", name, value, r.Min, r.Max))
	}
	return v
}

// Validate checks every field against its declared range. It never mutates
// b. A non-nil error is always a *ValidationError.
func (b Bundle) Validate() error {
	var v []string

	fe := b.FrontEnd
	v = check(v, "hw_target_lo", fe.HWTargetLo, rangeUnitInterval)
	v = check(v, "hw_target_hi", fe.HWTargetHi, rangeUnitInterval)
	v = check(v, "peak_tau_ms", fe.PeakTauMs, rangeTauMs)
	v = check(v, "valley_tau_ms", fe.ValleyTauMs, rangeTauMs)
	v = check(v, "attack_mult", fe.AttackMult, rangeAttackMult)
	v = check(v, "hit_thresh", fe.HitThresh, rangeHitThresh)
	v = check(v, "cooldown_ms", fe.CooldownMs, rangeCooldownMs)
	if fe.HWTargetHi <= fe.HWTargetLo {
		v = append(v, fmt.Sprintf("hw_target_hi (%.4g) must exceed hw_target_lo (%.4g)", fe.HWTargetHi, fe.HWTargetLo))
	}

	for name, d := range map[string]Detector{
		"drummer": b.Detectors.Drummer,
		"flux":    b.Detectors.Flux,
		"hfc":     b.Detectors.HFC,
		"bass":    b.Detectors.Bass,
		"complex": b.Detectors.Complex,
		"mel":     b.Detectors.MelFlux,
	} {
		v = check(v, name+".threshold", d.Threshold, rangeDetThresh)
		v = check(v, name+".floor", d.Floor, rangeDetFloor)
		v = check(v, name+".cooldown_ms", d.CooldownMs, rangeCooldownMs)
	}
	v = check(v, "hfc_weight", b.Detectors.HFCWeight, rangeWeight)
	v = check(v, "bass_freq_hz", b.Detectors.BassFreqHz, rangeBassFreq)
	v = check(v, "bass_q", b.Detectors.BassQ, rangeBassQ)
	v = check(v, "mel_bands", float64(b.Detectors.MelBands), rangeMelBands)

	fu := b.Fusion
	v = check(v, "weight_drummer", fu.WeightDrummer, rangeWeight)
	v = check(v, "weight_flux", fu.WeightFlux, rangeWeight)
	v = check(v, "weight_hfc", fu.WeightHFC, rangeWeight)
	v = check(v, "weight_bass", fu.WeightBass, rangeWeight)
	v = check(v, "weight_complex", fu.WeightComplex, rangeWeight)
	v = check(v, "weight_mel", fu.WeightMel, rangeWeight)
	v = check(v, "agree_k", fu.AgreeK, rangeAgreeK)
	v = check(v, "fusion_threshold", fu.FusionThreshold, rangeFusionThresh)
	v = check(v, "fusion_cooldown_ms", fu.FusionCooldownMs, rangeCooldownMs)

	rh := b.Rhythm
	v = check(v, "bpm_min", rh.BPMMin, rangeBPM)
	v = check(v, "bpm_max", rh.BPMMax, rangeBPM)
	v = check(v, "update_interval_ms", rh.UpdateIntervalMs, rangeUpdateMs)
	v = check(v, "k_hypotheses", float64(rh.KHypotheses), rangeKHyp)
	v = check(v, "prior_center_bpm", rh.PriorCenterBPM, rangeBPM)
	v = check(v, "prior_width", rh.PriorWidth, rangePriorWidth)
	v = check(v, "match_tol_ms", rh.MatchTolMs, rangeMatchTol)
	v = check(v, "activate_thresh", rh.ActivateThresh, rangeActivate)
	v = check(v, "deactivate_thresh", rh.DeactivateThresh, rangeActivate)
	v = check(v, "min_beats", float64(rh.MinBeats), rangeMinBeats)
	v = check(v, "conf_inc", rh.ConfInc, rangeConfStep)
	v = check(v, "conf_dec", rh.ConfDec, rangeConfStep)
	v = check(v, "silence_grace_ms", rh.SilenceGraceMs, rangeSilenceMs)
	v = check(v, "silence_half_ms", rh.SilenceHalfMs, rangeSilenceMs)
	v = check(v, "promote_thresh", rh.PromoteThresh, rangePromote)
	if rh.BPMMax <= rh.BPMMin {
		v = append(v, fmt.Sprintf("bpm_max (%.4g) must exceed bpm_min (%.4g)", rh.BPMMax, rh.BPMMin))
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}
