package telemetry

import (
	"encoding/json"
	"log"
	"net"
	"sync"
)

// pushEnvelope mirrors the teacher's ipc.PushMessage framing: a type tag
// plus a raw JSON payload, newline-delimited on the wire.
type pushEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func encodePush(msgType string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(pushEnvelope{Type: msgType, Data: data})
	if err != nil {
		return nil, err
	}
	return append(msg, '\n'), nil
}

// Sink fans a stream of per-hop Frames and BeatEvents out to every
// subscribed connection. It follows the teacher's audioSubs subscriber-set
// idiom (internal/ipc/server.go's pushAudioDataImmediate): a guarded set of
// net.Conn, copied out before any blocking I/O, with failed writes dropping
// the connection from the set.
type Sink struct {
	mu   sync.RWMutex
	subs map[net.Conn]struct{}
}

// NewSink constructs an empty Sink.
func NewSink() *Sink {
	return &Sink{subs: make(map[net.Conn]struct{})}
}

// Subscribe registers conn to receive pushed frames and beat events.
func (s *Sink) Subscribe(conn net.Conn) {
	s.mu.Lock()
	s.subs[conn] = struct{}{}
	s.mu.Unlock()
}

// Unsubscribe removes conn, if present. Safe to call more than once.
func (s *Sink) Unsubscribe(conn net.Conn) {
	s.mu.Lock()
	delete(s.subs, conn)
	s.mu.Unlock()
}

// Count reports the current subscriber count.
func (s *Sink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// PushFrame broadcasts a telemetry Frame to every subscriber (spec.md
// §4.7: "The record is push-only; no consumer feedback influences the
// pipeline").
func (s *Sink) PushFrame(f Frame) {
	s.broadcast("telemetry", f)
}

// PushBeat broadcasts a beat event as its own push type, separate from the
// per-hop Frame stream, so a consumer interested only in beats doesn't have
// to parse every hop.
func (s *Sink) PushBeat(ev BeatEvent) {
	s.broadcast("beat", ev)
}

func (s *Sink) broadcast(msgType string, v interface{}) {
	s.mu.RLock()
	if len(s.subs) == 0 {
		s.mu.RUnlock()
		return
	}
	conns := make([]net.Conn, 0, len(s.subs))
	for c := range s.subs {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	msg, err := encodePush(msgType, v)
	if err != nil {
		log.Printf("[TELEMETRY] encode error: %v", err)
		return
	}

	for _, c := range conns {
		if _, err := c.Write(msg); err != nil {
			s.Unsubscribe(c)
		}
	}
}

// BeatEvent is the wire shape of a rhythm beat event (spec.md §4.6, §4.7).
type BeatEvent struct {
	TimestampMs float64 `json:"timestamp_ms"`
	BPM         float64 `json:"bpm"`
	Confidence  float64 `json:"confidence"`
}
