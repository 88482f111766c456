package telemetry

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinkregel/local-media/musicd/internal/detect"
	"github.com/austinkregel/local-media/musicd/internal/fusion"
	"github.com/austinkregel/local-media/musicd/internal/rhythm"
)

func TestAssembleCopiesAllDetectorStrengths(t *testing.T) {
	det := detect.Outputs{
		Drummer: detect.Result{Strength: 0.1},
		Flux:    detect.Result{Strength: 0.2},
		HFC:     detect.Result{Strength: 0.3},
		Bass:    detect.Result{Strength: 0.4},
		Complex: detect.Result{Strength: 0.5},
		Mel:     detect.Result{Strength: 0.6},
	}
	f := Assemble(100, 7, 0.5, 0.4, 0.9, 0.1, 12, true, det, false, fusion.Onset{}, rhythm.Output{})

	assert.Equal(t, 0.1, f.Detectors.Drummer)
	assert.Equal(t, 0.6, f.Detectors.Mel)
	assert.Equal(t, uint64(7), f.SeqNum)
	assert.True(t, f.Alive)
	assert.False(t, f.OnsetFired)
	assert.Empty(t, f.OnsetBand)
}

func TestAssembleSetsOnsetBandOnlyWhenFired(t *testing.T) {
	f := Assemble(0, 0, 0, 0, 0, 0, 0, true, detect.Outputs{}, true, fusion.Onset{Band: fusion.BandLow}, rhythm.Output{})
	assert.Equal(t, "low", f.OnsetBand)

	f2 := Assemble(0, 0, 0, 0, 0, 0, 0, true, detect.Outputs{}, false, fusion.Onset{Band: fusion.BandLow}, rhythm.Output{})
	assert.Empty(t, f2.OnsetBand)
}

func TestSinkBroadcastsFrameToSubscribers(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	s := NewSink()
	s.Subscribe(server)
	require.Equal(t, 1, s.Count())

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	s.PushFrame(Frame{SeqNum: 42, BPM: 120})

	select {
	case data := <-done:
		var env pushEnvelope
		require.NoError(t, json.Unmarshal(data[:len(data)-1], &env))
		assert.Equal(t, "telemetry", env.Type)
		var f Frame
		require.NoError(t, json.Unmarshal(env.Data, &f))
		assert.Equal(t, uint64(42), f.SeqNum)
		assert.Equal(t, 120.0, f.BPM)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pushed frame")
	}
}

func TestSinkDropsSubscriberOnWriteError(t *testing.T) {
	server, client := net.Pipe()
	client.Close() // writes to server will now fail

	s := NewSink()
	s.Subscribe(server)
	s.PushFrame(Frame{})

	assert.Equal(t, 0, s.Count())
	server.Close()
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := NewSink()
	s.Subscribe(server)
	s.Unsubscribe(server)
	s.Unsubscribe(server)
	assert.Equal(t, 0, s.Count())
}
