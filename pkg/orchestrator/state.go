package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/fathomsearch/fathom/pkg/citation"
	"github.com/fathomsearch/fathom/pkg/models"
	"github.com/fathomsearch/fathom/pkg/stream"
)

// runState is the per-query mutable state of a pipeline run. Owned by the
// run goroutine; the few fields touched by the TTFT guard are behind the
// mutex.
type runState struct {
	query  models.Query
	budget models.Budget
	stream *stream.Stream
	start  time.Time
	ctx    context.Context // query context bounding blocking publishes

	laneResults []models.LaneResult
	fused       []models.FusedDocument
	alignment   citation.Result
	partial     bool
	cancelled   bool

	mu      sync.Mutex
	firstAt time.Time
	anyDocs bool
}

// publish forwards an event to the stream and records the first emission
// time for TTFT accounting. A full buffer blocks until the consumer drains
// or the query context ends, so a stalled client stalls synthesis too.
func (s *runState) publish(t stream.EventType, data any) {
	if err := s.stream.Publish(s.ctx, t, data); err != nil {
		return
	}
	s.mu.Lock()
	if s.firstAt.IsZero() {
		s.firstAt = time.Now()
	}
	s.mu.Unlock()
}

func (s *runState) firstEventAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstAt
}

func (s *runState) markDocsSeen() {
	s.mu.Lock()
	s.anyDocs = true
	s.mu.Unlock()
}

func (s *runState) docsSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anyDocs
}

// auditRecord assembles the durable provenance record for this run.
func (s *runState) auditRecord(total, ttft time.Duration, underSLA bool) *models.AuditRecord {
	outcomes := make([]models.LaneOutcome, 0, len(s.laneResults))
	for _, res := range s.laneResults {
		outcomes = append(outcomes, models.LaneOutcome{
			LaneID:    res.LaneID,
			Status:    res.Status,
			LatencyMS: res.Latency.Milliseconds(),
			DocCount:  len(res.Documents),
			Error:     res.Error,
		})
	}

	docIDs := make([]string, 0, len(s.fused))
	for _, fd := range s.fused {
		docIDs = append(docIDs, fd.Document.ContentHash)
	}

	return &models.AuditRecord{
		TraceID:          s.query.TraceID,
		QueryID:          s.query.ID,
		QueryText:        s.query.Text,
		Mode:             s.query.Mode,
		Budget:           s.budget.Snapshot(),
		Lanes:            outcomes,
		FusedDocIDs:      docIDs,
		Sentences:        s.alignment.Sentences,
		Citations:        s.alignment.Citations,
		Bibliography:     s.alignment.Bibliography,
		Disagreements:    s.alignment.Disagreements,
		TotalLatencyMS:   total.Milliseconds(),
		TTFTMS:           ttft.Milliseconds(),
		AnsweredUnderSLA: underSLA,
		Partial:          s.partial,
		Cancelled:        s.cancelled,
		CreatedAt:        time.Now().UTC(),
	}
}
