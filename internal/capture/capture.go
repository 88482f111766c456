package capture

import (
	"context"
	"errors"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// ErrClosed is returned by NextWindow once the capture has been closed
// and no further windows will ever arrive.
var ErrClosed = errors.New("capture: closed")

const overlapSize = params.WindowSize - params.HopSize

// Window is one analysis window: HopSize new samples concatenated with
// the previous call's trailing overlapSize samples (spec.md §4.1).
type Window struct {
	Samples [params.WindowSize]int16

	// SeqNum is a strictly monotonic per-window sequence number, starting
	// at 1. Windows are always delivered in order with no gaps in SeqNum
	// (spec.md §3): dropped ring blocks do not consume a SeqNum, so
	// DroppedBlocks is the counter that reports them.
	SeqNum uint64

	// Alive is false while the dead-input latch is set or a producer
	// overrun was just observed (spec.md §4.1, §7).
	Alive bool

	// DroppedBlocks is the number of buffered blocks skipped on this call
	// to catch up with the producer (spec.md §5 back-pressure).
	DroppedBlocks uint32

	// PipelineOverrun is set once an unbroken run of dropping calls has
	// discarded at least eight hops in total (four windows' worth at 50%
	// overlap); a call that drops nothing resets the run (spec.md §5).
	PipelineOverrun bool

	// ProducerOverruns is the cumulative count of ring blocks the producer
	// overwrote before they were ever read (spec.md §4.1).
	ProducerOverruns uint64
}

// Capture owns the sample ring and the single-consumer state needed to
// assemble overlapping windows from it. It is safe for one producer
// goroutine (calling Push) and one consumer goroutine (calling
// NextWindow) to use concurrently; it is not safe for multiple consumers.
type Capture struct {
	ring   *Ring
	notify chan struct{}

	overlap [overlapSize]int16
	seq     uint64

	zeroStreakSamples int
	deadLatched       bool

	consecutiveDrops uint32

	closed chan struct{}
}

// New constructs a Capture ready to receive pushes and serve windows.
func New() *Capture {
	return &Capture{
		ring:   NewRing(),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Push is called by the producer (the PDM ISR in hardware, or a
// synthetic sample generator in tests/simulation) with exactly HopSize
// new samples. It never blocks.
func (c *Capture) Push(samples []int16) {
	c.ring.Push(samples)
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Close stops the capture. Any blocked or future NextWindow call returns
// ErrClosed once the ring has been drained.
func (c *Capture) Close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// NextWindow blocks until a new hop is available (the only suspension
// point in the analysis task, per spec.md §5) and returns the assembled
// window.
func (c *Capture) NextWindow(ctx context.Context) (Window, error) {
	for {
		if c.ring.depth() > 0 {
			return c.assemble(), nil
		}
		select {
		case <-c.notify:
			continue
		case <-c.closed:
			if c.ring.depth() > 0 {
				return c.assemble(), nil
			}
			return Window{}, ErrClosed
		case <-ctx.Done():
			return Window{}, ctx.Err()
		}
	}
}

// assemble drains the ring down to a single buffered hop (dropping any
// backlog per spec.md §5), builds the overlapping window, and updates the
// dead-input latch.
func (c *Capture) assemble() Window {
	before := c.ring.OverrunCount()

	var dropped uint32
	for c.ring.depth() > 1 {
		c.ring.dropOldest()
		dropped++
	}

	block, ok := c.ring.pop()
	if !ok {
		// Racing with Close(): nothing left to serve.
		return Window{}
	}

	if dropped > 0 {
		c.consecutiveDrops += dropped
	} else {
		c.consecutiveDrops = 0
	}

	var w Window
	copy(w.Samples[:overlapSize], c.overlap[:])
	copy(w.Samples[overlapSize:], block[:])
	copy(c.overlap[:], w.Samples[params.HopSize:])

	allZero := true
	for _, s := range block {
		if s != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		c.zeroStreakSamples += params.HopSize
		if float64(c.zeroStreakSamples)*1000.0/params.SampleRate >= params.DeadInputMs {
			c.deadLatched = true
		}
	} else {
		c.zeroStreakSamples = 0
		c.deadLatched = false
	}

	after := c.ring.OverrunCount()

	c.seq++
	w.SeqNum = c.seq
	w.DroppedBlocks = dropped
	w.ProducerOverruns = after
	w.PipelineOverrun = c.consecutiveDrops >= 4*2 // 4 windows = 8 hops
	w.Alive = !c.deadLatched && after == before

	return w
}
