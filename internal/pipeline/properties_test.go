package pipeline

import (
	"context"
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/austinkregel/local-media/musicd/internal/params"
	"github.com/austinkregel/local-media/musicd/internal/rhythm"
)

// randomHop draws a hop whose per-sample amplitude and tone frequency
// (or silence) are generator-chosen, so each property run exercises a
// different acoustic scenario without a human enumerating cases.
func randomHop(t *rapid.T) []int16 {
	kind := rapid.SampledFrom([]string{"silence", "tone", "noise"}).Draw(t, "kind")
	amplitude := rapid.Float64Range(0, 1).Draw(t, "amplitude")

	switch kind {
	case "silence":
		return silentHop()
	case "tone":
		freq := rapid.Float64Range(60, 4000).Draw(t, "freq")
		return hopOf(func(i int) float64 {
			return amplitude * math.Sin(2*math.Pi*freq*float64(i)/params.SampleRate)
		})
	default:
		seed := rapid.Uint32().Draw(t, "seed")
		return hopOf(func(i int) float64 {
			x := uint32(i) + seed
			x ^= x << 13
			x ^= x >> 17
			x ^= x << 5
			return amplitude * (2*float64(x%1000)/1000 - 1)
		})
	}
}

// TestUniversalInvariantsHoldOnRandomInput encodes spec.md §8's
// universally quantified per-hop invariants (1, 2), an upper bound of 1 on
// every per-detector strength the Frame reports, and the rhythm-tracker
// invariants (5, 6) over generator-chosen input streams. The Frame carries
// no fused onset strength, so invariant 8 itself is checked in
// internal/fusion's tests.
func TestUniversalInvariantsHoldOnRandomInput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := &Pipeline{}
		np, err := New(params.Default())
		if err != nil {
			rt.Fatalf("New: %v", err)
		}
		p = np
		ctx := context.Background()

		nHops := rapid.IntRange(1, 200).Draw(rt, "nHops")
		for i := 0; i < nHops; i++ {
			p.Push(randomHop(rt))
			tf, err := p.StepOnce(ctx)
			if err != nil {
				rt.Fatalf("StepOnce: %v", err)
			}

			if tf.Level < 0 || tf.Level > 1 {
				rt.Fatalf("level out of range: %v", tf.Level)
			}
			if tf.Peak < tf.Valley || tf.Valley < 0 {
				rt.Fatalf("peak/valley invariant violated: peak=%v valley=%v", tf.Peak, tf.Valley)
			}

			strengths := []float64{
				tf.Detectors.Drummer, tf.Detectors.Flux, tf.Detectors.HFC,
				tf.Detectors.Bass, tf.Detectors.Complex, tf.Detectors.Mel,
			}
			for _, s := range strengths {
				if s > 1 {
					rt.Fatalf("ensemble strength exceeds upper bound: %v", s)
				}
			}

			if p.RhythmState() == rhythm.StateLocked {
				b := p.Bundle()
				if tf.BPM < b.Rhythm.BPMMin || tf.BPM > b.Rhythm.BPMMax {
					rt.Fatalf("locked BPM out of range: %v not in [%v,%v]", tf.BPM, b.Rhythm.BPMMin, b.Rhythm.BPMMax)
				}
				if tf.PhaseNorm < 0 || tf.PhaseNorm >= 1 {
					rt.Fatalf("phase norm out of [0,1): %v", tf.PhaseNorm)
				}
			}
		}
	})
}

// TestSeqNumMonotonicOnRandomInput is spec.md §8 invariant 7 (monotone
// timestamps) restated over sequence numbers, which are timestamp-
// equivalent (nowMs = seqNum * HopMs).
func TestSeqNumMonotonicOnRandomInput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p, err := New(params.Default())
		if err != nil {
			rt.Fatalf("New: %v", err)
		}
		ctx := context.Background()

		nHops := rapid.IntRange(1, 100).Draw(rt, "nHops")
		var last uint64
		for i := 0; i < nHops; i++ {
			p.Push(randomHop(rt))
			tf, err := p.StepOnce(ctx)
			if err != nil {
				rt.Fatalf("StepOnce: %v", err)
			}
			if i > 0 && tf.SeqNum <= last {
				rt.Fatalf("seqNum not strictly increasing: last=%v cur=%v", last, tf.SeqNum)
			}
			last = tf.SeqNum
		}
	})
}

// TestReloadIsIdempotentOnNoOpBundle covers spec.md §8's round-trip
// property: re-applying the same parameter bundle is a no-op (no state
// reset) -- the bundle value itself is unchanged and Reload never errors
// on a bundle it just accepted.
func TestReloadIsIdempotentOnNoOpBundle(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p, err := New(params.Default())
		if err != nil {
			rt.Fatalf("New: %v", err)
		}

		b := p.Bundle()
		if err := p.Reload(b); err != nil {
			rt.Fatalf("re-applying the active bundle should never be rejected: %v", err)
		}
		if p.Bundle() != b {
			rt.Fatalf("re-applying the active bundle changed it: %+v != %+v", p.Bundle(), b)
		}
	})
}
