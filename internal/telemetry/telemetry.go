// Package telemetry assembles the per-hop record the pipeline pushes to
// downstream consumers (spec.md §4.7). The record is push-only: nothing a
// consumer sends back influences the analysis pipeline.
package telemetry

import (
	"github.com/austinkregel/local-media/musicd/internal/detect"
	"github.com/austinkregel/local-media/musicd/internal/fusion"
	"github.com/austinkregel/local-media/musicd/internal/rhythm"
)

// DetectorStrengths holds the six ensemble members' per-hop strengths
// (spec.md §4.7: "per-detector strengths").
type DetectorStrengths struct {
	Drummer float64 `json:"drummer"`
	Flux    float64 `json:"flux"`
	HFC     float64 `json:"hfc"`
	Bass    float64 `json:"bass"`
	Complex float64 `json:"complex"`
	Mel     float64 `json:"mel"`
}

// Frame is one hop's compact telemetry record (spec.md §4.7). Field names
// carry the json tags the push transport serializes.
type Frame struct {
	TimestampMs float64 `json:"timestamp_ms"`
	SeqNum      uint64  `json:"seq_num"`

	Level     float64 `json:"level"`
	FastEnv   float64 `json:"fast_env"`
	Peak      float64 `json:"peak"`
	Valley    float64 `json:"valley"`
	GainIndex int     `json:"gain_index"`
	Alive     bool    `json:"alive"`

	Detectors DetectorStrengths `json:"detectors"`

	OnsetFired bool   `json:"onset_fired"`
	OnsetBand  string `json:"onset_band,omitempty"`

	BPM        float64 `json:"bpm"`
	PhaseNorm  float64 `json:"phase_norm"`
	Confidence float64 `json:"confidence"`
	Beat       bool    `json:"beat"`
}

func bandLabel(b fusion.Band) string {
	if b == fusion.BandLow {
		return "low"
	}
	return "high"
}

// Assemble builds one Frame from a hop's outputs across the pipeline
// stages. onsetFired/onset carry fusion's result for this hop; pass a zero
// Onset and onsetFired=false when fusion did not fire.
func Assemble(
	timestampMs float64,
	seqNum uint64,
	level, fastEnv, peak, valley float64,
	gainIndex int,
	alive bool,
	det detect.Outputs,
	onsetFired bool,
	onset fusion.Onset,
	rhythmOut rhythm.Output,
) Frame {
	f := Frame{
		TimestampMs: timestampMs,
		SeqNum:      seqNum,
		Level:       level,
		FastEnv:     fastEnv,
		Peak:        peak,
		Valley:      valley,
		GainIndex:   gainIndex,
		Alive:       alive,
		Detectors: DetectorStrengths{
			Drummer: det.Drummer.Strength,
			Flux:    det.Flux.Strength,
			HFC:     det.HFC.Strength,
			Bass:    det.Bass.Strength,
			Complex: det.Complex.Strength,
			Mel:     det.Mel.Strength,
		},
		OnsetFired: onsetFired,
		BPM:        rhythmOut.BPM,
		PhaseNorm:  rhythmOut.PhaseNorm,
		Confidence: rhythmOut.Confidence,
		Beat:       rhythmOut.Beat,
	}
	if onsetFired {
		f.OnsetBand = bandLabel(onset.Band)
	}
	return f
}
