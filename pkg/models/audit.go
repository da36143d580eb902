package models

import "time"

// LaneOutcome is the per-lane entry of the audit record: status and
// latency, without the documents themselves.
type LaneOutcome struct {
	LaneID    LaneID     `json:"lane_id"`
	Status    LaneStatus `json:"status"`
	LatencyMS int64      `json:"latency_ms"`
	DocCount  int        `json:"doc_count"`
	Error     string     `json:"error,omitempty"`
}

// AuditRecord is the durable per-query provenance: budgets, lane outcomes,
// fused document identities, citations, and disagreements. Written exactly
// once per query after stream completion or abort, retrievable by trace id.
type AuditRecord struct {
	TraceID          string              `json:"trace_id"`
	QueryID          string              `json:"query_id"`
	QueryText        string              `json:"query_text"`
	Mode             Mode                `json:"mode"`
	Budget           BudgetSnapshot      `json:"budget"`
	Lanes            []LaneOutcome       `json:"per_lane_results"`
	FusedDocIDs      []string            `json:"fused_doc_ids"`
	Sentences        []AnswerSentence    `json:"answer_sentences"`
	Citations        []Citation          `json:"citations"`
	Bibliography     []BibliographyEntry `json:"bibliography"`
	Disagreements    []Disagreement      `json:"disagreements,omitempty"`
	TotalLatencyMS   int64               `json:"total_latency_ms"`
	TTFTMS           int64               `json:"ttft_ms"`
	AnsweredUnderSLA bool                `json:"answered_under_sla"`
	Partial          bool                `json:"partial"`
	Cancelled        bool                `json:"cancelled,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// BudgetSnapshot is the JSON-friendly form of a Budget, in milliseconds.
type BudgetSnapshot struct {
	GlobalMS    int64            `json:"global_deadline_ms"`
	PerLaneMS   map[LaneID]int64 `json:"per_lane_ms"`
	SynthesisMS int64            `json:"synthesis_ms"`
	ReserveMS   int64            `json:"reserve_ms"`
	ResultCap   int              `json:"result_cap"`
}

// Snapshot converts a Budget into its audit form.
func (b Budget) Snapshot() BudgetSnapshot {
	perLane := make(map[LaneID]int64, len(b.PerLane))
	for id, d := range b.PerLane {
		perLane[id] = d.Milliseconds()
	}
	return BudgetSnapshot{
		GlobalMS:    b.Global.Milliseconds(),
		PerLaneMS:   perLane,
		SynthesisMS: b.Synthesis.Milliseconds(),
		ReserveMS:   b.Reserve.Milliseconds(),
		ResultCap:   b.ResultCap,
	}
}
