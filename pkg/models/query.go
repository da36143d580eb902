// Package models defines the value types shared across the retrieval
// pipeline: queries, documents, lane results, fused documents, citations,
// and the audit record. All types are plain values — lanes never share
// mutable state through them.
package models

import "time"

// Mode is the coarse query classification that selects the global deadline
// and per-lane budget profile.
type Mode string

const (
	ModeSimple     Mode = "simple"
	ModeTechnical  Mode = "technical"
	ModeResearch   Mode = "research"
	ModeMultimedia Mode = "multimedia"
)

// Valid reports whether m is one of the four known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSimple, ModeTechnical, ModeResearch, ModeMultimedia:
		return true
	}
	return false
}

// LaneID identifies a retrieval lane.
type LaneID string

const (
	LaneWeb       LaneID = "web"
	LaneVector    LaneID = "vector"
	LaneKG        LaneID = "kg"
	LaneKeyword   LaneID = "keyword"
	LaneNews      LaneID = "news"
	LaneMarkets   LaneID = "markets"
	LanePreflight LaneID = "preflight"
)

// RetrievalLanes lists the document-producing lanes in a stable order.
// The pre-flight lane is excluded: it refines the query, it does not
// retrieve documents.
var RetrievalLanes = []LaneID{LaneWeb, LaneVector, LaneKG, LaneKeyword, LaneNews, LaneMarkets}

// TimeRange constrains documents by publication date.
type TimeRange string

const (
	TimeRangeRecent     TimeRange = "recent"
	TimeRangeLast5Years TimeRange = "last_5_years"
	TimeRangeAllTime    TimeRange = "all_time"
)

// SourceBias biases lane selection and domain preference.
type SourceBias string

const (
	SourcesAcademic SourceBias = "academic"
	SourcesNews     SourceBias = "news"
	SourcesBoth     SourceBias = "both"
)

// CostCeiling caps per-lane token and result budgets.
type CostCeiling string

const (
	CostLow    CostCeiling = "low"
	CostMedium CostCeiling = "medium"
	CostHigh   CostCeiling = "high"
)

// Multiplier returns the budget multiplier for the ceiling.
// Unset ceilings behave as medium.
func (c CostCeiling) Multiplier() float64 {
	switch c {
	case CostLow:
		return 0.5
	case CostHigh:
		return 2.0
	default:
		return 1.0
	}
}

// Depth caps the result count per lane.
type Depth string

const (
	DepthSimple    Depth = "simple"
	DepthTechnical Depth = "technical"
	DepthResearch  Depth = "research"
)

// ResultCap returns the per-lane document cap for the depth setting.
// Unset depths behave as technical.
func (d Depth) ResultCap() int {
	switch d {
	case DepthSimple:
		return 10
	case DepthResearch:
		return 50
	default:
		return 20
	}
}

// Constraints are optional retrieval constraints, typically bound by the
// pre-flight refinement lane. Zero values mean "unset".
type Constraints struct {
	TimeRange         TimeRange   `json:"time_range,omitempty"`
	Sources           SourceBias  `json:"sources,omitempty"`
	CostCeiling       CostCeiling `json:"cost_ceiling,omitempty"`
	Depth             Depth       `json:"depth,omitempty"`
	CitationsRequired *bool       `json:"citations_required,omitempty"`
}

// WantCitations reports whether an inline-citation pass is required.
// Defaults to true when unset.
func (c Constraints) WantCitations() bool {
	if c.CitationsRequired == nil {
		return true
	}
	return *c.CitationsRequired
}

// Query is an accepted search query. Immutable after acceptance: the
// orchestrator owns it for its lifetime and never mutates it.
type Query struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Mode        Mode        `json:"mode"`
	Constraints Constraints `json:"constraints"`
	TraceID     string      `json:"trace_id"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// Budget is the millisecond allocation for a query, computed at admission
// from mode and cost ceiling. Invariant: the retrieval window (the largest
// lane budget) plus the synthesis budget plus the reserve never exceeds
// the global deadline — lanes run concurrently, so the window is the max,
// not the sum.
type Budget struct {
	Global    time.Duration            `json:"global_deadline_ms"`
	PerLane   map[LaneID]time.Duration `json:"per_lane_ms"`
	Synthesis time.Duration            `json:"synthesis_ms"`
	Reserve   time.Duration            `json:"reserve_ms"`
	ResultCap int                      `json:"result_cap"`
}

// LaneBudget returns the budget for a lane, zero if the lane is unknown.
func (b Budget) LaneBudget(id LaneID) time.Duration {
	return b.PerLane[id]
}

// RetrievalWindow returns the largest per-lane budget.
func (b Budget) RetrievalWindow() time.Duration {
	var maxBudget time.Duration
	for _, d := range b.PerLane {
		if d > maxBudget {
			maxBudget = d
		}
	}
	return maxBudget
}
