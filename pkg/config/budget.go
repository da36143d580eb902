package config

import (
	"time"

	"github.com/fathomsearch/fathom/pkg/models"
)

// ComputeBudget allocates the millisecond budget for a query at admission
// time from its mode and constraints.
//
// Allocation rules:
//   - The global deadline comes from the mode table.
//   - Lane budgets come from the mode profile, scaled by the cost-ceiling
//     multiplier, then clamped by any per-lane override.
//   - Lanes run concurrently, so the retrieval window is the largest lane
//     budget. The window plus the synthesis budget is floored so that at
//     least ReserveFloor remains for the orchestrator: when the scaled
//     allocation would eat into the reserve, lane and synthesis budgets
//     are scaled down proportionally.
func ComputeBudget(cfg *Config, mode models.Mode, constraints models.Constraints) models.Budget {
	global := cfg.SLA.ModeDeadlines[mode]
	profile := cfg.SLA.LaneProfiles[mode]
	synthesis := cfg.SLA.SynthesisBudgets[mode]
	reserve := cfg.SLA.ReserveFloor
	multiplier := constraints.CostCeiling.Multiplier()

	perLane := make(map[models.LaneID]time.Duration, len(profile))
	var window time.Duration
	for _, id := range models.RetrievalLanes {
		if !cfg.LaneEnabled(id) {
			continue
		}
		budget := scale(profile[id], multiplier)
		if override := cfg.LaneSetting(id).BudgetOverride; override > 0 {
			budget = override
		}
		perLane[id] = budget
		if budget > window {
			window = budget
		}
	}
	synthesis = scale(synthesis, multiplier)

	// Floor: retrieval window + synthesis must leave the reserve intact.
	if available := global - reserve; window+synthesis > available && window+synthesis > 0 {
		ratio := float64(available) / float64(window+synthesis)
		for id, budget := range perLane {
			perLane[id] = time.Duration(float64(budget) * ratio)
		}
		synthesis = time.Duration(float64(synthesis) * ratio)
	}

	depth := constraints.Depth
	if depth == "" {
		depth = depthForMode(mode)
	}

	return models.Budget{
		Global:    global,
		PerLane:   perLane,
		Synthesis: synthesis,
		Reserve:   reserve,
		ResultCap: depth.ResultCap(),
	}
}

// BypassPreflight reports whether the pre-flight refinement lane should be
// skipped: when spending its fixed budget up front would leave any lane
// with less than 25% of its allocation before the reserve begins.
func BypassPreflight(cfg *Config, budget models.Budget) bool {
	window := budget.Global - budget.Reserve - budget.Synthesis - cfg.SLA.PreflightBudget
	for _, lane := range budget.PerLane {
		if lane <= 0 {
			continue
		}
		if window < lane/4 {
			return true
		}
	}
	return false
}

func scale(d time.Duration, multiplier float64) time.Duration {
	return time.Duration(float64(d) * multiplier)
}

// depthForMode maps a mode to its default depth when constraints leave
// depth unset. Multimedia behaves as research.
func depthForMode(mode models.Mode) models.Depth {
	switch mode {
	case models.ModeSimple:
		return models.DepthSimple
	case models.ModeTechnical:
		return models.DepthTechnical
	default:
		return models.DepthResearch
	}
}
