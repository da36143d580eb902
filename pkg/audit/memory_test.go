package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/models"
)

func sampleRecord(traceID string) *models.AuditRecord {
	return &models.AuditRecord{
		TraceID:   traceID,
		QueryID:   "q-" + traceID,
		QueryText: "capital of France",
		Mode:      models.ModeSimple,
		Budget: models.BudgetSnapshot{
			GlobalMS:  5000,
			PerLaneMS: map[models.LaneID]int64{models.LaneWeb: 1000},
			ReserveMS: 500,
		},
		Lanes: []models.LaneOutcome{
			{LaneID: models.LaneWeb, Status: models.LaneSuccess, LatencyMS: 420, DocCount: 3},
			{LaneID: models.LaneVector, Status: models.LaneTimeout, LatencyMS: 1000},
		},
		FusedDocIDs:      []string{"hash-a", "hash-b"},
		Sentences:        []models.AnswerSentence{{Text: "The capital of France is Paris.", Citations: []int{1}}},
		Citations:        []models.Citation{{MarkerID: 1, DocumentID: "hash-a", Similarity: 0.91, Confidence: 0.91}},
		Bibliography:     []models.BibliographyEntry{{MarkerID: 1, Title: "Paris", URL: "https://en.wikipedia.org/wiki/Paris", Domain: "en.wikipedia.org"}},
		TotalLatencyMS:   1800,
		TTFTMS:           600,
		AnsweredUnderSLA: true,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestMemorySinkWriteGet(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	rec := sampleRecord("trace-a")
	require.NoError(t, s.Write(ctx, rec))

	got, err := s.Get(ctx, "trace-a")
	require.NoError(t, err)
	assert.Equal(t, rec.QueryText, got.QueryText)
	assert.Equal(t, rec.Lanes, got.Lanes)
	assert.Equal(t, rec.Bibliography, got.Bibliography)
}

func TestMemorySinkDuplicateTraceID(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, sampleRecord("trace-b")))
	err := s.Write(ctx, sampleRecord("trace-b"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemorySinkNotFound(t *testing.T) {
	_, err := NewMemorySink().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySinkSweep(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	old := sampleRecord("trace-old")
	old.CreatedAt = time.Now().AddDate(0, 0, -100)
	require.NoError(t, s.Write(ctx, old))
	require.NoError(t, s.Write(ctx, sampleRecord("trace-new")))

	n, err := s.Sweep(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "trace-old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "trace-new")
	assert.NoError(t, err)
}

func TestSweeperDeletesExpired(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	old := sampleRecord("trace-expired")
	old.CreatedAt = time.Now().AddDate(0, 0, -100)
	require.NoError(t, s.Write(ctx, old))

	sweeper := NewSweeper(s, &config.AuditConfig{RetentionDays: 90, SweepInterval: time.Hour})
	sweeper.sweepOnce(ctx)

	_, err := s.Get(ctx, "trace-expired")
	assert.ErrorIs(t, err, ErrNotFound)
}
