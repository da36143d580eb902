// Package fusion merges heterogeneous lane results into one ordered list:
// two-pass deduplication, reciprocal rank fusion with domain-diversity and
// recency boosts, and a final weighted ranking over authority, quality,
// and length components. Fusion is deterministic: the same lane results
// produce the same ordering regardless of lane arrival order.
package fusion

import (
	"sort"
	"time"

	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/models"
)

// Fuser applies the fusion pipeline with a fixed configuration. Stateless
// across calls; safe for concurrent use.
type Fuser struct {
	cfg *config.FusionConfig
	now func() time.Time // swappable in tests for recency boosts
}

func NewFuser(cfg *config.FusionConfig) *Fuser {
	return &Fuser{cfg: cfg, now: time.Now}
}

// Fuse dedupes, scores, and ranks the lane results. Empty and failed
// lanes contribute nothing; a document found by a single lane is still
// eligible.
func (f *Fuser) Fuse(results []models.LaneResult) []models.FusedDocument {
	// Lane arrival order must not influence the outcome; process lanes in
	// the canonical order.
	ordered := make([]models.LaneResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].LaneID < ordered[j].LaneID })

	candidates := dedupe(ordered, f.cfg.TitleJaccard)
	if len(candidates) == 0 {
		return nil
	}

	fused := make([]models.FusedDocument, 0, len(candidates))
	for _, c := range candidates {
		var rrf float64
		for _, rank := range c.ranks {
			rrf += 1.0 / float64(f.cfg.RRFK+rank)
		}
		fused = append(fused, models.FusedDocument{
			Document: c.doc,
			RRFScore: rrf,
			Components: models.ComponentScores{
				RRF:     rrf,
				Recency: f.recencyBoost(c.doc.PublishedAt),
			},
			Lanes: c.lanes(),
		})
	}

	// Domain diversity is positional: walk in raw-RRF order and boost the
	// first documents seen per domain.
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].RRFScore != fused[j].RRFScore {
			return fused[i].RRFScore > fused[j].RRFScore
		}
		return fused[i].Document.ContentHash < fused[j].Document.ContentHash
	})
	domainSeen := make(map[string]int)
	for i := range fused {
		n := domainSeen[fused[i].Document.Domain]
		domainSeen[fused[i].Document.Domain] = n + 1
		fused[i].Components.DomainDiversity = f.diversityBoost(n)
	}

	for i := range fused {
		fused[i].RRFScore += fused[i].Components.DomainDiversity + fused[i].Components.Recency
	}

	f.rank(fused)
	return fused
}

// diversityBoost returns the boost for the n-th document (0-based) seen
// from a domain: full boost for the first, half for the second, and a
// 1/(n+1) falloff after that.
func (f *Fuser) diversityBoost(n int) float64 {
	return f.cfg.DomainBoost / float64(n+1)
}

// recencyBoost returns the publication-age boost; zero for unknown dates.
func (f *Fuser) recencyBoost(published *time.Time) float64 {
	if published == nil {
		return 0
	}
	age := f.now().Sub(*published)
	switch {
	case age <= 24*time.Hour:
		return f.cfg.RecencyBoostDay
	case age <= 7*24*time.Hour:
		return f.cfg.RecencyBoostWeek
	case age <= 30*24*time.Hour:
		return f.cfg.RecencyBoostMonth
	default:
		return 0
	}
}
