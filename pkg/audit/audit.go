// Package audit persists the per-query provenance record. A record is
// written exactly once per query after stream completion or abort, and is
// retrievable by trace id. The Postgres sink is the production path; the
// memory sink backs tests and fathomctl's offline mode.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/fathomsearch/fathom/pkg/models"
)

var (
	// ErrNotFound means no record exists for the trace id.
	ErrNotFound = errors.New("audit record not found")

	// ErrDuplicate means a record for the trace id was already written.
	ErrDuplicate = errors.New("audit record already exists")
)

// Sink stores and retrieves audit records.
type Sink interface {
	// Write persists the record. Writing the same trace id twice returns
	// ErrDuplicate and leaves the original untouched.
	Write(ctx context.Context, rec *models.AuditRecord) error

	// Get retrieves the record for a trace id.
	Get(ctx context.Context, traceID string) (*models.AuditRecord, error)

	// Sweep deletes records created before the cutoff and reports how
	// many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the sink's resources.
	Close() error
}
