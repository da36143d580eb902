// Package lane implements the lane framework: a uniform, deadline-bounded
// run contract around heterogeneous retrieval backends. Each lane is a
// small state machine (idle → running → success | timeout | error |
// cancelled) executed by a Runner that enforces the budget, maps errors
// onto the structured taxonomy, applies polite per-provider rate limits,
// trips a circuit breaker on persistent failures, and caps result counts.
//
// Lanes are independent: no shared mutable state, no lane-to-lane
// communication. Ordering across lanes is imposed later, at fusion.
package lane

import (
	"context"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Request is the immutable input every lane receives.
type Request struct {
	Query       models.Query
	Constraints models.Constraints

	// K caps the number of documents the lane may return.
	K int
}

// Lane fetches documents from one backend. Fetch may return partial
// documents alongside a non-nil error (typically on deadline): the runner
// retains them in the timeout result.
type Lane interface {
	ID() models.LaneID
	Fetch(ctx context.Context, req Request) ([]models.Document, error)
}

// Refinement is the output of the pre-flight lane: bound constraints and,
// optionally, a replacement query text. The retriever-facing query stays
// unchanged unless ReplaceQuery is set.
type Refinement struct {
	Constraints  models.Constraints
	ReplaceQuery bool
	Query        string
}

// Refiner is the pre-flight capability. Its result is optional: when it
// overruns its budget the orchestrator proceeds with the original query.
type Refiner interface {
	Refine(ctx context.Context, query models.Query) (Refinement, error)
}
