package audit

import (
	"context"
	"sync"
	"time"

	"github.com/fathomsearch/fathom/pkg/models"
)

// MemorySink is an in-process Sink for tests and offline runs.
type MemorySink struct {
	mu      sync.RWMutex
	records map[string]*models.AuditRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]*models.AuditRecord)}
}

func (s *MemorySink) Write(_ context.Context, rec *models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TraceID]; ok {
		return ErrDuplicate
	}
	cp := *rec
	s.records[rec.TraceID] = &cp
	return nil
}

func (s *MemorySink) Get(_ context.Context, traceID string) (*models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[traceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemorySink) Sweep(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemorySink) Close() error { return nil }

var _ Sink = (*MemorySink)(nil)
