package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/fathomsearch/fathom/pkg/audit"
	"github.com/fathomsearch/fathom/pkg/citation"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/lane"
	"github.com/fathomsearch/fathom/pkg/llm"
	"github.com/fathomsearch/fathom/pkg/models"
	"github.com/fathomsearch/fathom/pkg/stream"
)

// laneGrace is the slack granted to lane goroutines past the retrieval
// cutoff before their pending results are written off as timeouts.
const laneGrace = 50 * time.Millisecond

// run drives one query end to end. It always emits exactly one final
// event and writes the audit record exactly once, on every path including
// panics.
func (o *Orchestrator) run(ctx context.Context, query models.Query, budget models.Budget, s *stream.Stream) {
	defer o.finish(query)
	start := time.Now()

	state := &runState{
		query:  query,
		budget: budget,
		stream: s,
		start:  start,
		ctx:    ctx,
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Query pipeline panic", "trace_id", query.TraceID, "panic", r, "stack", string(debug.Stack()))
			state.publish(stream.EventError, stream.ErrorData{
				Kind:    "internal_error",
				Message: "internal pipeline failure",
			})
			state.partial = true
		}
		o.complete(ctx, state)
	}()

	qctx, cancel := context.WithTimeout(ctx, budget.Global)
	defer cancel()
	// Blocking publishes ride the query context so a stalled consumer can
	// only hold synthesis until cancellation or the deadline.
	state.ctx = qctx

	// TTFT guard: if nothing has been emitted by the target, synthesize a
	// keepalive, or a degraded notice when retrieval has produced nothing.
	ttftGuard := time.AfterFunc(o.cfg.Stream.TTFTTarget, func() {
		if state.firstEventAt() != (time.Time{}) {
			return
		}
		if state.docsSeen() {
			state.publish(stream.EventHeartbeat, nil)
		} else {
			state.publish(stream.EventDegraded, stream.DegradedData{
				Reason: "no retrieval output yet",
			})
		}
	})
	defer ttftGuard.Stop()

	constraints := o.preflight(qctx, &query, budget)

	results := o.dispatch(qctx, query, constraints, budget, state)
	state.laneResults = results

	fused := o.fuser.Fuse(results)
	if len(fused) > budget.ResultCap {
		fused = fused[:budget.ResultCap]
	}
	state.fused = fused
	if o.metrics != nil {
		o.metrics.FusedDocuments.Observe(float64(len(fused)))
	}
	if len(fused) == 0 {
		state.publish(stream.EventDegraded, stream.DegradedData{
			Reason: "retrieval produced no documents, answer will be uncertain",
		})
	}

	// Hard deadline or cancellation during retrieval: emit the final with
	// whatever has been produced, skip synthesis.
	if qctx.Err() != nil {
		state.partial = true
		if ctx.Err() != nil {
			state.cancelled = true
		}
		return
	}

	answer := o.synthesize(qctx, query, fused, state)
	o.align(qctx, query, answer, fused, state)
}

// preflight runs the refinement lane under its fixed budget. Overruns and
// errors are discarded: retrieval proceeds with the caller's constraints.
func (o *Orchestrator) preflight(ctx context.Context, query *models.Query, budget models.Budget) models.Constraints {
	if o.refiner == nil || config.BypassPreflight(o.cfg, budget) {
		return query.Constraints
	}

	pctx, cancel := context.WithTimeout(ctx, o.cfg.SLA.PreflightBudget)
	defer cancel()

	type outcome struct {
		ref lane.Refinement
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		ref, err := o.refiner.Refine(pctx, *query)
		ch <- outcome{ref, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			slog.Debug("Pre-flight refinement failed", "trace_id", query.TraceID, "error", out.err)
			return query.Constraints
		}
		if out.ref.ReplaceQuery && out.ref.Query != "" {
			query.Text = out.ref.Query
		}
		return out.ref.Constraints
	case <-pctx.Done():
		slog.Debug("Pre-flight refinement overran its budget", "trace_id", query.TraceID)
		return query.Constraints
	}
}

// dispatch launches every wired lane concurrently and gathers results
// until all lanes terminate or the retrieval cutoff passes. Exactly one
// LaneResult is recorded per lane.
func (o *Orchestrator) dispatch(ctx context.Context, query models.Query, constraints models.Constraints, budget models.Budget, state *runState) []models.LaneResult {
	laneIDs := o.registry.Lanes()
	remaining := budget.Global - budget.Reserve - budget.Synthesis - time.Since(state.start)

	req := lane.Request{Query: query, Constraints: constraints, K: budget.ResultCap}
	resultCh := make(chan models.LaneResult, len(laneIDs))

	launched := 0
	for _, id := range laneIDs {
		laneBudget := budget.LaneBudget(id)
		if laneBudget <= 0 {
			continue
		}
		if laneBudget > remaining {
			laneBudget = remaining
		}
		if laneBudget <= 0 {
			resultCh <- models.LaneResult{LaneID: id, Status: models.LaneTimeout, Error: string(lane.ErrTimeout)}
			launched++
			continue
		}
		runner := o.registry.Runner(id)
		launched++
		go func() {
			resultCh <- runner.Run(ctx, req, laneBudget)
		}()
	}

	cutoff := time.NewTimer(remaining + laneGrace)
	defer cutoff.Stop()

	results := make([]models.LaneResult, 0, launched)
	got := make(map[models.LaneID]bool, launched)
	for len(results) < launched {
		select {
		case res := <-resultCh:
			got[res.LaneID] = true
			results = append(results, res)
			if len(res.Documents) > 0 {
				state.markDocsSeen()
			}
			if o.metrics != nil {
				o.metrics.ObserveLane(res)
			}
		case <-cutoff.C:
			// Reserve begins: stop accepting retrieval results. Anything
			// still pending is recorded as a timeout.
			for _, id := range laneIDs {
				if !got[id] && budget.LaneBudget(id) > 0 {
					results = append(results, models.LaneResult{
						LaneID:  id,
						Status:  models.LaneTimeout,
						Latency: time.Since(state.start),
						Error:   string(lane.ErrTimeout),
					})
				}
			}
			return results
		}
	}
	return results
}

// synthesize streams the answer tokens, falling back to the extractive
// synthesizer when the model path fails.
func (o *Orchestrator) synthesize(ctx context.Context, query models.Query, fused []models.FusedDocument, state *runState) string {
	synthBudget := state.budget.Synthesis
	if remaining := state.budget.Global - state.budget.Reserve - time.Since(state.start); remaining < synthBudget {
		synthBudget = remaining
	}
	if synthBudget <= 0 {
		state.partial = true
		return ""
	}

	sctx, cancel := context.WithTimeout(ctx, synthBudget)
	defer cancel()

	req := llm.Request{
		Query:    query.Text,
		Mode:     query.Mode,
		Corpus:   fused,
		Disclose: len(fused) == 0,
	}

	answer, ok := o.streamSynthesis(sctx, o.synth, req, state)
	if ok {
		return answer
	}
	if ctx.Err() != nil {
		// Cancelled or out of global budget: no fallback, finish with
		// what exists.
		state.partial = true
		return ""
	}

	// Model path failed inside the budget: engage the extractive fallback
	// and tell the client.
	state.publish(stream.EventDegraded, stream.DegradedData{
		Reason: "synthesis failed, serving extractive fallback",
	})
	fctx, fcancel := context.WithTimeout(ctx, state.budget.Reserve/2)
	defer fcancel()
	answer, _ = o.streamSynthesis(fctx, o.fallback, req, state)
	if answer == "" {
		state.partial = true
	}
	return answer
}

// streamSynthesis runs one synthesizer and forwards its tokens to the
// stream. Returns the full answer text and whether the stream completed.
func (o *Orchestrator) streamSynthesis(ctx context.Context, synth llm.Synthesizer, req llm.Request, state *runState) (string, bool) {
	ch, err := synth.Synthesize(ctx, req)
	if err != nil {
		slog.Warn("Synthesis start failed", "trace_id", state.query.TraceID, "error", err)
		return "", false
	}
	for chunk := range ch {
		switch {
		case chunk.Err != nil:
			slog.Warn("Synthesis stream failed", "trace_id", state.query.TraceID, "error", chunk.Err)
			return "", false
		case chunk.Done:
			return chunk.Text, true
		default:
			state.publish(stream.EventToken, stream.TokenData{Text: chunk.Text})
		}
	}
	return "", false
}

// align runs citation alignment and streams citations and disagreements.
// With citations disabled by constraint, sentences are kept without
// markers and the bibliography stays empty.
func (o *Orchestrator) align(ctx context.Context, query models.Query, answer string, fused []models.FusedDocument, state *runState) {
	if answer == "" {
		return
	}

	if !query.Constraints.WantCitations() {
		for _, text := range citation.SplitSentences(answer) {
			state.alignment.Sentences = append(state.alignment.Sentences, models.AnswerSentence{
				Text:     text,
				NoSource: true,
			})
		}
		return
	}

	res := o.aligner.Align(ctx, answer, fused)
	state.alignment = res

	seen := make(map[int]bool)
	for _, c := range res.Citations {
		if seen[c.MarkerID] {
			continue
		}
		seen[c.MarkerID] = true
		state.publish(stream.EventCitation, stream.CitationData{
			Citation:     c,
			Bibliography: res.Bibliography[c.MarkerID-1],
		})
	}
	for _, d := range res.Disagreements {
		state.publish(stream.EventDisagreement, d)
	}
}

// complete emits the final event and writes the audit record. Runs on
// every path.
func (o *Orchestrator) complete(ctx context.Context, state *runState) {
	total := time.Since(state.start)
	deadline := state.budget.Global

	// Cancellation at any stage marks the record.
	if ctx.Err() != nil {
		state.cancelled = true
		state.partial = true
	}

	for _, res := range state.laneResults {
		if res.Status == models.LaneTimeout || res.Status == models.LaneError || res.Status == models.LaneCancelled {
			state.partial = true
		}
	}
	underSLA := total <= deadline && !state.cancelled

	var ttft time.Duration
	if first := state.firstEventAt(); !first.IsZero() {
		ttft = first.Sub(state.start)
	}

	state.stream.Final(stream.FinalData{
		TotalLatencyMS:   total.Milliseconds(),
		TTFTMS:           ttft.Milliseconds(),
		Partial:          state.partial,
		AnsweredUnderSLA: underSLA,
	})

	if o.metrics != nil {
		o.metrics.ObserveQuery(state.query.Mode, total, ttft, underSLA, state.partial)
	}

	rec := state.auditRecord(total, ttft, underSLA)
	// The run context may already be done; the audit write gets its own
	// short deadline.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.sink.Write(actx, rec); err != nil {
		if errors.Is(err, audit.ErrDuplicate) {
			// A record for this trace already exists, so provenance is
			// durable; a racing retry is not a write failure.
			slog.Debug("Audit record already present", "trace_id", state.query.TraceID)
			return
		}
		if o.metrics != nil {
			o.metrics.AuditWriteFails.Inc()
		}
		slog.Error("Audit write failed", "trace_id", state.query.TraceID, "error", err)
	}
}
