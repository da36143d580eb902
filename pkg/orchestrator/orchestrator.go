// Package orchestrator owns the query lifecycle: admission, budget
// computation, concurrent lane dispatch, deadline and reserve enforcement,
// fusion hand-off, synthesis, citation alignment, streaming, and the
// once-per-query audit write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathomsearch/fathom/pkg/audit"
	"github.com/fathomsearch/fathom/pkg/citation"
	"github.com/fathomsearch/fathom/pkg/classify"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/fusion"
	"github.com/fathomsearch/fathom/pkg/lane"
	"github.com/fathomsearch/fathom/pkg/llm"
	"github.com/fathomsearch/fathom/pkg/metrics"
	"github.com/fathomsearch/fathom/pkg/models"
	"github.com/fathomsearch/fathom/pkg/stream"
)

var (
	// ErrInvalidQuery means the query failed admission validation.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrDuplicateTrace means a query with the same trace id is already
	// in flight or recorded.
	ErrDuplicateTrace = errors.New("duplicate trace id")

	// ErrNoLanes means no retrieval lane is wired and enabled.
	ErrNoLanes = errors.New("no retrieval lanes available")
)

// maxQueryLen bounds accepted query text.
const maxQueryLen = 4096

// Orchestrator drives queries through the retrieval pipeline. Safe for
// concurrent use; each submitted query runs in its own goroutine tree.
type Orchestrator struct {
	cfg      *config.Config
	registry *lane.Registry
	refiner  lane.Refiner
	fuser    *fusion.Fuser
	aligner  *citation.Aligner
	synth    llm.Synthesizer
	fallback llm.Synthesizer
	sink     audit.Sink
	metrics  *metrics.Metrics

	mu     sync.Mutex
	active map[string]context.CancelFunc // query id → cancel
	traces map[string]struct{}           // in-flight trace ids
}

// Options carries the collaborators wired in at startup. Sink and Metrics
// are required; Refiner and Synth may be nil (pre-flight skipped, synthesis
// falls back to the extractive path).
type Options struct {
	Registry *lane.Registry
	Refiner  lane.Refiner
	Synth    llm.Synthesizer
	Sink     audit.Sink
	Metrics  *metrics.Metrics
}

func New(cfg *config.Config, opts Options) *Orchestrator {
	synth := opts.Synth
	if synth == nil {
		synth = llm.NewFallback()
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: opts.Registry,
		refiner:  opts.Refiner,
		fuser:    fusion.NewFuser(cfg.Fusion),
		aligner:  citation.NewAligner(cfg.Citation, nil),
		synth:    synth,
		fallback: llm.NewFallback(),
		sink:     opts.Sink,
		metrics:  opts.Metrics,
	}
}

// SetAligner swaps in an aligner built over a shared embedder. Called at
// wiring time, before any Submit.
func (o *Orchestrator) SetAligner(a *citation.Aligner) {
	o.aligner = a
}

// Submit validates and admits a query, then returns its event stream. The
// returned stream is lazy and finite: it terminates with exactly one final
// event. Attachments mark the query multimedia during classification.
func (o *Orchestrator) Submit(ctx context.Context, query models.Query, attachments []string) (*stream.Stream, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query text", ErrInvalidQuery)
	}
	if len(text) > maxQueryLen {
		return nil, fmt.Errorf("%w: query text exceeds %d bytes", ErrInvalidQuery, maxQueryLen)
	}
	if query.Mode != "" && !query.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, query.Mode)
	}
	if len(o.registry.Lanes()) == 0 {
		return nil, ErrNoLanes
	}

	query.Text = text
	if query.ID == "" {
		query.ID = uuid.NewString()
	}
	if query.TraceID == "" {
		query.TraceID = uuid.NewString()
	}
	if query.Mode == "" {
		query.Mode = classify.Classify(text, attachments)
	}
	if query.SubmittedAt.IsZero() {
		query.SubmittedAt = time.Now()
	}

	if err := o.reserveTrace(ctx, query); err != nil {
		return nil, err
	}

	budget := config.ComputeBudget(o.cfg, query.Mode, query.Constraints)
	s := stream.New(query.TraceID, o.cfg.Stream)

	// Deriving from the caller's context wires client disconnect straight
	// into lane cancellation.
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	if o.active == nil {
		o.active = make(map[string]context.CancelFunc)
	}
	o.active[query.ID] = cancel
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.QueriesTotal.WithLabelValues(string(query.Mode)).Inc()
		o.metrics.ActiveQueries.Inc()
	}

	go o.run(runCtx, query, budget, s)
	return s, nil
}

// Cancel propagates cancellation to every lane of an in-flight query.
// Unknown ids are a no-op.
func (o *Orchestrator) Cancel(queryID string) {
	o.mu.Lock()
	cancel, ok := o.active[queryID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

// reserveTrace rejects a trace id that is in flight or already audited.
func (o *Orchestrator) reserveTrace(ctx context.Context, query models.Query) error {
	o.mu.Lock()
	if o.traces == nil {
		o.traces = make(map[string]struct{})
	}
	if _, ok := o.traces[query.TraceID]; ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTrace, query.TraceID)
	}
	o.traces[query.TraceID] = struct{}{}
	o.mu.Unlock()

	if _, err := o.sink.Get(ctx, query.TraceID); err == nil {
		o.releaseTrace(query.TraceID)
		return fmt.Errorf("%w: %s", ErrDuplicateTrace, query.TraceID)
	}
	return nil
}

func (o *Orchestrator) releaseTrace(traceID string) {
	o.mu.Lock()
	delete(o.traces, traceID)
	o.mu.Unlock()
}

func (o *Orchestrator) finish(query models.Query) {
	o.mu.Lock()
	cancel := o.active[query.ID]
	delete(o.active, query.ID)
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.releaseTrace(query.TraceID)
	if o.metrics != nil {
		o.metrics.ActiveQueries.Dec()
	}
}
