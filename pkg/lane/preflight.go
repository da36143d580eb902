package lane

import (
	"context"
	"strings"

	"github.com/fathomsearch/fathom/pkg/models"
)

// HeuristicRefiner is the built-in pre-flight implementation: it binds
// unset retrieval constraints from cue words in the query text. It never
// rewrites the query text and it never overrides a constraint the caller
// set explicitly.
type HeuristicRefiner struct{}

func NewHeuristicRefiner() *HeuristicRefiner { return &HeuristicRefiner{} }

var (
	recencyCues  = []string{"latest", "today", "right now", "this week", "breaking", "current"}
	academicCues = []string{"paper", "papers", "study", "studies", "peer-reviewed", "journal", "literature"}
	newsCues     = []string{"news", "headline", "headlines", "announced", "reported"}
	cheapCues    = []string{"quick", "briefly", "short answer", "tl;dr"}
	deepCues     = []string{"in depth", "detailed", "comprehensive", "thorough", "exhaustive"}
)

func hasCue(text string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}

// Refine binds constraints from cue words. The returned refinement keeps
// ReplaceQuery false: downstream lanes keep retrieving with the original
// text.
func (r *HeuristicRefiner) Refine(ctx context.Context, query models.Query) (Refinement, error) {
	if err := ctx.Err(); err != nil {
		return Refinement{}, err
	}

	bound := query.Constraints
	text := strings.ToLower(query.Text)

	if bound.TimeRange == "" && hasCue(text, recencyCues) {
		bound.TimeRange = models.TimeRangeRecent
	}
	if bound.Sources == "" {
		academic := hasCue(text, academicCues)
		news := hasCue(text, newsCues)
		switch {
		case academic && news:
			bound.Sources = models.SourcesBoth
		case academic:
			bound.Sources = models.SourcesAcademic
		case news:
			bound.Sources = models.SourcesNews
		}
	}
	if bound.CostCeiling == "" && hasCue(text, cheapCues) {
		bound.CostCeiling = models.CostLow
	}
	if bound.Depth == "" && hasCue(text, deepCues) {
		bound.Depth = models.DepthResearch
	}

	return Refinement{Constraints: bound}, nil
}
