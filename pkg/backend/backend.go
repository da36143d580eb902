// Package backend defines the collaborator capabilities the pipeline
// retrieves from: web/news/markets search providers, the vector store,
// the keyword index, and the graph store. Implementations are plugged in
// at startup; lanes only ever see these interfaces, so every backend can
// be mocked in tests.
//
// Implementations must honor context cancellation on every outbound call
// and map provider failures onto the sentinel errors below — nothing raw
// crosses the lane boundary.
package backend

import (
	"context"
	"errors"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Sentinel errors for the structured lane error taxonomy. Implementations
// wrap these with provider detail via fmt.Errorf("%w: ...").
var (
	// ErrUnavailable means the provider could not be reached.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrRateLimited means the provider rejected the call for rate reasons.
	ErrRateLimited = errors.New("backend rate limited")

	// ErrAuthFailed means credentials were rejected.
	ErrAuthFailed = errors.New("backend auth failed")
)

// SearchOptions carry the per-call constraints a provider should honor.
type SearchOptions struct {
	// K is the maximum number of documents to return.
	K int

	// TimeRange filters documents by publication date when set.
	TimeRange models.TimeRange

	// Sources biases the provider's domain preference when set.
	Sources models.SourceBias
}

// SearchProvider is the capability behind the web, news, and markets
// lanes: a deadline-bounded keyword search over an external corpus.
type SearchProvider interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]models.Document, error)
}

// VectorStore is a similarity search over embedded documents.
type VectorStore interface {
	Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]models.Document, error)
}

// KeywordIndex is an exact/boolean keyword index (BM25 or similar).
type KeywordIndex interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]models.Document, error)
}

// GraphStore expands entities through a knowledge graph and returns the
// documents attached to the visited nodes.
type GraphStore interface {
	Expand(ctx context.Context, entities []string, depth int, opts SearchOptions) ([]models.Document, error)
}

// Embedder turns texts into dense vectors. May batch internally; must be
// bounded in latency and honor ctx.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthChecker is implemented by backends that can report liveness.
// The health endpoint probes each configured backend with a short
// deadline; backends without this capability are reported as "ok" when
// configured.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
