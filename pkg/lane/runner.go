package lane

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/models"
)

// retryBaseDelay is the first retry backoff; each retry doubles it and
// adds up to 50% jitter.
const retryBaseDelay = 50 * time.Millisecond

// Runner executes one lane under the framework's guarantees. A Runner is
// built once per lane at startup and shared across queries; per-query
// state lives entirely on the stack of Run.
type Runner struct {
	lane     Lane
	settings *config.LaneSettings
	limiter  *Limiter
	breaker  *gobreaker.CircuitBreaker
}

// NewRunner wraps a lane with budget enforcement, retries, rate limiting,
// and a circuit breaker.
func NewRunner(l Lane, settings *config.LaneSettings, limiter *Limiter) *Runner {
	limiter.Configure(string(l.ID()), settings.RateLimitRPS, settings.RateBurst)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(l.ID()),
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Runner{
		lane:     l,
		settings: settings,
		limiter:  limiter,
		breaker:  breaker,
	}
}

// ID returns the wrapped lane's identifier.
func (r *Runner) ID() models.LaneID {
	return r.lane.ID()
}

// Run executes the lane under budget and returns its LaneResult. Exactly
// one result is produced per call; partial documents gathered before a
// deadline are retained in timeout results.
func (r *Runner) Run(ctx context.Context, req Request, budget time.Duration) models.LaneResult {
	id := r.lane.ID()
	start := time.Now()

	if !r.settings.Enabled {
		return models.LaneResult{LaneID: id, Status: models.LaneDisabled}
	}

	laneCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	docs, err := r.fetchWithRetry(laneCtx, req)
	latency := time.Since(start)

	result := models.LaneResult{
		LaneID:  id,
		Latency: latency,
		// Cap before anything downstream sees the result.
		Documents: capDocs(normalizeDocs(docs, id), req.K),
	}

	switch kind := MapError(err); kind {
	case ErrNone:
		result.Status = models.LaneSuccess
	case ErrTimeout:
		result.Status = models.LaneTimeout
		result.Error = string(kind)
	case ErrCancelledKind:
		// Distinguish the lane's own deadline from upstream cancellation.
		if ctx.Err() != nil {
			result.Status = models.LaneCancelled
		} else {
			result.Status = models.LaneTimeout
		}
		result.Error = string(kind)
	default:
		result.Status = models.LaneError
		result.Error = fmt.Sprintf("%s: %v", kind, err)
		slog.Warn("Lane failed", "lane", id, "kind", kind, "error", err, "latency", latency)
	}
	return result
}

// fetchWithRetry performs the backend call with the lane's bounded retry
// policy: at most MaxRetries (≤2) extra attempts, jittered exponential
// backoff, never exceeding the lane context's deadline.
func (r *Runner) fetchWithRetry(ctx context.Context, req Request) ([]models.Document, error) {
	var docs []models.Document
	var err error

	for attempt := 0; ; attempt++ {
		if !r.limiter.Reserve(string(r.lane.ID()), 1) {
			err = fmt.Errorf("%w: provider bucket empty", errRateBudget)
		} else {
			var out any
			out, err = r.breaker.Execute(func() (any, error) {
				return r.lane.Fetch(ctx, req)
			})
			if out != nil {
				docs = out.([]models.Document)
			}
		}

		kind := MapError(err)
		if kind == ErrNone || !kind.Retryable() || attempt >= r.settings.MaxRetries {
			return docs, err
		}

		delay := retryBaseDelay << attempt
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return docs, ctx.Err()
		}
	}
}

// errRateBudget marks a local (limiter) rate rejection; it wraps the
// backend sentinel so MapError treats it like a provider 429.
var errRateBudget = fmt.Errorf("local rate limit: %w", backend.ErrRateLimited)

func normalizeDocs(docs []models.Document, id models.LaneID) []models.Document {
	for i := range docs {
		if docs[i].LaneID == "" {
			docs[i].LaneID = id
		}
		docs[i].Normalize()
	}
	return docs
}

func capDocs(docs []models.Document, k int) []models.Document {
	if k > 0 && len(docs) > k {
		return docs[:k]
	}
	return docs
}
