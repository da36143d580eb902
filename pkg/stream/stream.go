// Package stream implements the per-query event envelope: a bounded,
// totally ordered event channel with monotonic sequence numbers, trace id
// propagation, synthesized heartbeats, and an exactly-once final event.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/models"
)

// EventType tags an envelope event.
type EventType string

const (
	EventToken        EventType = "token"
	EventHeartbeat    EventType = "heartbeat"
	EventCitation     EventType = "citation"
	EventDisagreement EventType = "disagreement"
	EventDegraded     EventType = "degraded"
	EventFinal        EventType = "final"
	EventError        EventType = "error"
)

// Event is the tagged envelope every consumer sees. Seq is monotonic per
// query starting at 1; every event carries the query's trace id.
type Event struct {
	Event   EventType `json:"event"`
	Seq     int64     `json:"seq"`
	TraceID string    `json:"trace_id"`
	Data    any       `json:"data,omitempty"`
	TS      time.Time `json:"ts"`
}

// TokenData carries one synthesized token delta.
type TokenData struct {
	Text string `json:"text"`
}

// DegradedData explains why the stream is degraded.
type DegradedData struct {
	Reason string `json:"reason"`
}

// ErrorData carries a terminal error description.
type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CitationData attaches a citation and its bibliography entry to the
// stream.
type CitationData struct {
	Citation     models.Citation          `json:"citation"`
	Bibliography models.BibliographyEntry `json:"bibliography"`
}

// FinalData is the payload of the single final event.
type FinalData struct {
	TotalLatencyMS   int64 `json:"total_latency_ms"`
	TTFTMS           int64 `json:"ttft_ms"`
	Partial          bool  `json:"partial"`
	AnsweredUnderSLA bool  `json:"answered_under_sla"`
}

// ErrClosed is returned by Publish after the final event.
var ErrClosed = errors.New("stream closed")

// Stream is the per-query event publisher. One goroutine publishes, one
// consumes Events; the heartbeat goroutine synthesizes keepalives when no
// real event flows for the configured interval.
type Stream struct {
	traceID string
	ch      chan Event

	mu        sync.Mutex
	seq       int64
	lastEmit  time.Time
	closed    bool
	finalSent bool

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
	now           func() time.Time
}

// New creates a stream for one query and starts its heartbeat loop.
func New(traceID string, cfg *config.StreamConfig) *Stream {
	s := &Stream{
		traceID:       traceID,
		ch:            make(chan Event, cfg.BufferSize),
		stopHeartbeat: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
		now:           time.Now,
	}
	s.lastEmit = s.now()
	go s.heartbeatLoop(cfg.HeartbeatInterval)
	return s
}

// Events is the consumer side. Closed after the final event is delivered.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Publish emits a non-terminal event. Returns ErrClosed after Final. When
// the buffer is full it blocks until the consumer drains an event or ctx
// ends, so a stalled consumer exerts backpressure on synthesis instead of
// losing tokens.
func (s *Stream) Publish(ctx context.Context, t EventType, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.seq++
	ev := Event{
		Event:   t,
		Seq:     s.seq,
		TraceID: s.traceID,
		Data:    data,
		TS:      s.now(),
	}
	select {
	case s.ch <- ev:
		s.lastEmit = ev.TS
		return nil
	default:
	}
	select {
	case s.ch <- ev:
		s.lastEmit = ev.TS
		return nil
	case <-ctx.Done():
		// Last chance in case the consumer drained concurrently with the
		// cancellation; otherwise the event is lost with the query.
		select {
		case s.ch <- ev:
			s.lastEmit = ev.TS
			return nil
		default:
		}
		s.seq--
		return ctx.Err()
	}
}

// Final emits the terminal event exactly once and closes the stream. The
// second and later calls are no-ops so error paths can call it defensively.
func (s *Stream) Final(data FinalData) {
	s.mu.Lock()
	if s.finalSent {
		s.mu.Unlock()
		return
	}
	s.finalSent = true
	s.emitFinalLocked(data)
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	close(s.stopHeartbeat)
	<-s.heartbeatDone
}

func (s *Stream) emitLocked(t EventType, data any) error {
	if s.closed {
		return ErrClosed
	}
	s.seq++
	ev := Event{
		Event:   t,
		Seq:     s.seq,
		TraceID: s.traceID,
		Data:    data,
		TS:      s.now(),
	}
	select {
	case s.ch <- ev:
		s.lastEmit = ev.TS
		return nil
	default:
		// Full buffer: a missed heartbeat is harmless, the consumer is
		// not reading anyway.
		s.seq--
		return errors.New("stream buffer full")
	}
}

// emitFinalLocked guarantees delivery of the final event: when the buffer
// is full it evicts the oldest pending event to make room. The stream is
// the only sender, so receiving from the channel under the lock is safe.
func (s *Stream) emitFinalLocked(data FinalData) {
	s.seq++
	ev := Event{
		Event:   EventFinal,
		Seq:     s.seq,
		TraceID: s.traceID,
		Data:    data,
		TS:      s.now(),
	}
	for {
		select {
		case s.ch <- ev:
			s.lastEmit = ev.TS
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// heartbeatLoop synthesizes a keepalive whenever the stream stays silent
// for a full interval. The timer is re-armed to the next due time computed
// from the last emission, so the gap between consecutive events never
// exceeds the interval.
func (s *Stream) heartbeatLoop(interval time.Duration) {
	defer close(s.heartbeatDone)
	if interval <= 0 {
		<-s.stopHeartbeat
		return
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-s.stopHeartbeat:
			return
		case <-timer.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			idle := s.now().Sub(s.lastEmit)
			if idle >= interval {
				if s.emitLocked(EventHeartbeat, nil) == nil {
					idle = 0
				}
			}
			s.mu.Unlock()
			next := interval - idle
			if next <= 0 {
				next = interval
			}
			timer.Reset(next)
		}
	}
}
