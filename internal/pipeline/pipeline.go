// Package pipeline wires the analysis chain together: capture, frontend,
// spectral, detect, fusion and rhythm, advanced in that fixed order every
// hop (spec.md §5: "4.2 → 4.3 → 4.4 → 4.5 → 4.6 → 4.7"), with the
// telemetry assembler producing one pushed record per hop regardless of
// how degraded the hop was.
package pipeline

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/austinkregel/local-media/musicd/internal/capture"
	"github.com/austinkregel/local-media/musicd/internal/detect"
	"github.com/austinkregel/local-media/musicd/internal/frontend"
	"github.com/austinkregel/local-media/musicd/internal/fusion"
	"github.com/austinkregel/local-media/musicd/internal/params"
	"github.com/austinkregel/local-media/musicd/internal/rhythm"
	"github.com/austinkregel/local-media/musicd/internal/spectral"
	"github.com/austinkregel/local-media/musicd/internal/telemetry"
)

// Pipeline owns one instance of every pipeline stage and the single-
// threaded analysis loop that advances them (spec.md §5: "the analysis
// task is single-threaded; detectors are invoked in sequence, not in
// parallel").
type Pipeline struct {
	capture *capture.Capture
	mic     *frontend.Mic
	spec    *spectral.Analyzer
	ensem   *detect.Ensemble
	fuser   *fusion.Fuser
	rhythm  *rhythm.Tracker

	sink *telemetry.Sink

	bundle atomic.Value // params.Bundle
}

// New constructs a Pipeline with a freshly validated parameter bundle.
// Construction fails only if the default/initial bundle itself fails
// Validate (spec.md §6: "the pipeline reads a parameter bundle at
// construction").
func New(initial params.Bundle) (*Pipeline, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		capture: capture.New(),
		mic:     frontend.New(),
		spec:    spectral.New(initial.Detectors.MelBands),
		ensem:   detect.New(spectral.NumBins(), initial.Detectors.MelBands),
		fuser:   fusion.New(),
		rhythm:  rhythm.New(),
		sink:    telemetry.NewSink(),
	}
	p.bundle.Store(initial)
	return p, nil
}

// Sink returns the telemetry push fan-out, for wiring into the IPC server
// or any other subscriber transport.
func (p *Pipeline) Sink() *telemetry.Sink { return p.sink }

// RhythmState exposes the tracker's current state machine tag, mainly for
// test introspection; telemetry.Frame carries BPM/phase/confidence/beat
// but not the raw state (spec.md §4.7 doesn't name it as part of the
// per-hop record).
func (p *Pipeline) RhythmState() rhythm.State { return p.rhythm.State() }

// GainIndex returns the front-end's current hardware gain index, for the
// capture driver to write back to the device at the next window boundary
// (spec.md §4.2 step 4: "written to the capture layer on the next window
// boundary, not mid-window"). Pipeline itself never touches the device —
// it has no reference to one — so the caller driving the capture source
// (cmd/blinkcored's feedCapture) is responsible for calling
// capture.Device.SetGain with this value between reads.
func (p *Pipeline) GainIndex() int { return p.mic.GainIndex() }

// Push feeds one fixed-size block of raw PCM samples from the capture
// producer (spec.md §4.1; called from the driver/ISR side, MUST NOT
// block).
func (p *Pipeline) Push(samples []int16) {
	p.capture.Push(samples)
}

// Reload validates and, if valid, atomically swaps the running parameter
// bundle (spec.md §7: "reject the reload as a whole; keep prior
// parameters"). The mel-filterbank-dependent stages (spectral, detect) are
// NOT resized on reload: spec.md §5 requires statically sized buffers
// after initialization, so mel_bands changes only take effect at the next
// process restart. A one-shot warning is logged rather than silently
// ignored.
func (p *Pipeline) Reload(b params.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	prev := p.Bundle()
	if b.Detectors.MelBands != prev.Detectors.MelBands {
		log.Printf("[PIPELINE] mel_bands change from %d to %d ignored until restart (static allocation, spec.md §5)", prev.Detectors.MelBands, b.Detectors.MelBands)
		b.Detectors.MelBands = prev.Detectors.MelBands
	}
	p.bundle.Store(b)
	return nil
}

// Bundle returns the currently active parameter bundle.
func (p *Pipeline) Bundle() params.Bundle {
	return p.bundle.Load().(params.Bundle)
}

// Run drives the analysis loop until ctx is cancelled or the capture is
// closed, per spec.md §5's cancellation policy: finish the current
// window, then exit (the caller is responsible for stopping the capture
// producer/ISR only after Run returns).
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if _, err := p.StepOnce(ctx); err != nil {
			return err
		}
	}
}

// StepOnce blocks for the next assembled window and advances every stage
// exactly once, returning the telemetry Frame it produced. Run calls this
// in a loop; a replay/record test harness can call it directly to drive
// the pipeline deterministically one hop at a time.
func (p *Pipeline) StepOnce(ctx context.Context) (telemetry.Frame, error) {
	win, err := p.capture.NextWindow(ctx)
	if err != nil {
		return telemetry.Frame{}, err
	}
	return p.step(win), nil
}

// step advances every stage by exactly one hop, in spec.md §5's fixed
// order, and always produces and pushes one telemetry Frame — even on a
// degraded hop — per spec.md §7's propagation policy.
func (p *Pipeline) step(win capture.Window) telemetry.Frame {
	b := p.Bundle()
	nowMs := float64(win.SeqNum) * params.HopMs

	hop := win.Samples[params.WindowSize-params.HopSize:]
	feOut := p.mic.Update(hop, win.Alive, b.FrontEnd)

	frame := p.spec.Process(win.Samples[:])

	// spec.md §7: "Sustained input fault ... all detectors suppressed
	// (they would mis-fire on the zero-to-signal edge) until recovery."
	var detOut detect.Outputs
	var onset fusion.Onset
	var fired bool
	if win.Alive {
		dctx := detect.Context{
			NowMs:       nowMs,
			Frame:       frame,
			FastEnv:     feOut.FastEnv,
			PrevFastEnv: feOut.PrevFastEnv,
			SlowEnv:     feOut.SlowEnv,
		}
		detOut = p.ensem.Update(dctx, b.Detectors)
		onset, fired = p.fuser.Update(nowMs, detOut, b.Fusion)
	} else {
		p.ensem.Reset()
		p.fuser.Reset()
	}

	rOut := p.rhythm.Update(nowMs, fired, onset.Strength, b.Rhythm)

	tf := telemetry.Assemble(
		nowMs, win.SeqNum,
		feOut.Level, feOut.FastEnv, feOut.Peak, feOut.Valley,
		feOut.GainIndex, feOut.Alive,
		detOut, fired, onset, rOut,
	)
	p.sink.PushFrame(tf)
	if rOut.Beat {
		p.sink.PushBeat(telemetry.BeatEvent{
			TimestampMs: rOut.BeatEvent.TimestampMs,
			BPM:         rOut.BeatEvent.BPM,
			Confidence:  rOut.BeatEvent.Confidence,
		})
	}
	return tf
}

// Close shuts down the capture ring, unblocking any in-flight Run call
// with capture.ErrClosed.
func (p *Pipeline) Close() {
	p.capture.Close()
}
