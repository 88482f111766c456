// Package capture implements the PDM sample ring (spec.md §4.1, §5): a
// lock-free single-producer/single-consumer queue of fixed-size hop
// blocks, written by the (simulated) PDM interrupt and drained one hop at
// a time by the analysis task.
package capture

import (
	"sync/atomic"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// ringCapacity is the number of hop-sized blocks the ring holds. It must
// be a power of two (cheap index wrap) and cover at least RingWindows
// windows' worth of hops.
const ringCapacity = 8 // 8 hops = 4 windows at 50% overlap

const ringMask = ringCapacity - 1

type hopBlock [params.HopSize]int16

// Ring is a bounded SPSC queue of hop blocks. The zero value is not
// usable; construct with NewRing. All indices are free-running uint32
// counters; only their difference modulo ringCapacity is meaningful,
// matching the classic lock-free ring-buffer idiom of two atomic
// monotonic counters rather than a wrapped read/write pair.
type Ring struct {
	buf  [ringCapacity]hopBlock
	head atomic.Uint32 // next write slot (producer-owned)
	tail atomic.Uint32 // next read slot (consumer-owned)

	overrunCount atomic.Uint64 // blocks overwritten before being read
}

// NewRing constructs an empty ring.
func NewRing() *Ring {
	return &Ring{}
}

// Push is called by the single producer (the PDM ISR). It must never
// block: if the ring is full, the oldest unread block is overwritten and
// the overrun counter is incremented.
func (r *Ring) Push(block []int16) {
	var b hopBlock
	copy(b[:], block)

	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= ringCapacity {
		// Full: drop the oldest block by advancing tail past it.
		r.tail.Store(tail + 1)
		r.overrunCount.Add(1)
	}

	r.buf[head&ringMask] = b
	r.head.Store(head + 1)
}

// depth returns the number of unread blocks currently queued.
func (r *Ring) depth() uint32 {
	return r.head.Load() - r.tail.Load()
}

// pop is called by the single consumer. It returns false if the ring is
// empty.
func (r *Ring) pop() (hopBlock, bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail == head {
		return hopBlock{}, false
	}
	b := r.buf[tail&ringMask]
	r.tail.Store(tail + 1)
	return b, true
}

// dropOldest discards the oldest unread block without returning it, used
// by the consumer to catch up on back-pressure (spec.md §5). Returns
// false if the ring was already empty.
func (r *Ring) dropOldest() bool {
	_, ok := r.pop()
	return ok
}

// OverrunCount returns the number of blocks the producer overwrote before
// they were ever read.
func (r *Ring) OverrunCount() uint64 {
	return r.overrunCount.Load()
}
