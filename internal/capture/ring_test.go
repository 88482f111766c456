package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

func block(fill int16) []int16 {
	b := make([]int16, params.HopSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestRingPushPopFIFO(t *testing.T) {
	r := NewRing()
	r.Push(block(1))
	r.Push(block(2))

	b, ok := r.pop()
	require.True(t, ok)
	assert.Equal(t, int16(1), b[0])

	b, ok = r.pop()
	require.True(t, ok)
	assert.Equal(t, int16(2), b[0])

	_, ok = r.pop()
	assert.False(t, ok)
}

func TestRingDepthTracksPushesAndPops(t *testing.T) {
	r := NewRing()
	assert.Equal(t, uint32(0), r.depth())
	r.Push(block(1))
	r.Push(block(2))
	assert.Equal(t, uint32(2), r.depth())
	r.pop()
	assert.Equal(t, uint32(1), r.depth())
}

func TestRingOverwritesOldestOnOverrun(t *testing.T) {
	r := NewRing()
	for i := 0; i < ringCapacity; i++ {
		r.Push(block(int16(i)))
	}
	assert.Equal(t, uint64(0), r.OverrunCount())

	r.Push(block(99)) // one more than capacity: oldest block dropped

	assert.Equal(t, uint64(1), r.OverrunCount())
	assert.Equal(t, uint32(ringCapacity), r.depth())

	b, ok := r.pop()
	require.True(t, ok)
	assert.Equal(t, int16(1), b[0]) // block 0 was overwritten
}

func TestRingDropOldest(t *testing.T) {
	r := NewRing()
	r.Push(block(1))
	r.Push(block(2))

	assert.True(t, r.dropOldest())
	b, ok := r.pop()
	require.True(t, ok)
	assert.Equal(t, int16(2), b[0])

	assert.False(t, r.dropOldest())
}
