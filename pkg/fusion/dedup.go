package fusion

import (
	"sort"
	"strings"

	"github.com/fathomsearch/fathom/pkg/models"
)

// candidate is a deduped document with its per-lane ranks. Ranks are
// 1-based positions within the contributing lane's result list.
type candidate struct {
	doc   models.Document
	ranks map[models.LaneID]int
}

func (c *candidate) lanes() []models.LaneID {
	out := make([]models.LaneID, 0, len(c.ranks))
	for id := range c.ranks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// merge folds other into c, keeping the best rank per lane. The canonical
// document is the one seen first; only the lane set grows.
func (c *candidate) merge(other *candidate) {
	for id, r := range other.ranks {
		if cur, ok := c.ranks[id]; !ok || r < cur {
			c.ranks[id] = r
		}
	}
}

// dedupe collapses lane results into unique candidates in two passes:
// exact content-hash identity first, then fuzzy (domain, title) identity
// at the configured Jaccard threshold. Lane sets merge on both passes so
// cross-lane hits keep their full RRF contribution.
func dedupe(results []models.LaneResult, titleJaccard float64) []*candidate {
	var order []*candidate
	byHash := make(map[string]*candidate)

	for _, res := range results {
		for i := range res.Documents {
			doc := res.Documents[i]
			doc.Normalize()
			rank := i + 1
			if existing, ok := byHash[doc.ContentHash]; ok {
				existing.merge(&candidate{ranks: map[models.LaneID]int{res.LaneID: rank}})
				continue
			}
			c := &candidate{doc: doc, ranks: map[models.LaneID]int{res.LaneID: rank}}
			byHash[doc.ContentHash] = c
			order = append(order, c)
		}
	}

	// Second pass: collapse URL-only variants of the same article. Within
	// a domain, compare title token sets pairwise; the earlier candidate
	// absorbs the later one.
	byDomain := make(map[string][]*candidate)
	for _, c := range order {
		if c.doc.Domain != "" {
			byDomain[c.doc.Domain] = append(byDomain[c.doc.Domain], c)
		}
	}
	absorbed := make(map[*candidate]bool)
	for _, group := range byDomain {
		for i := 0; i < len(group); i++ {
			if absorbed[group[i]] {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				if absorbed[group[j]] {
					continue
				}
				if titleSimilarity(group[i].doc.Title, group[j].doc.Title) >= titleJaccard {
					group[i].merge(group[j])
					absorbed[group[j]] = true
				}
			}
		}
	}

	out := order[:0]
	for _, c := range order {
		if !absorbed[c] {
			out = append(out, c)
		}
	}
	return out
}

// titleSimilarity is the Jaccard similarity of the lowercased title token
// sets. Empty titles never match.
func titleSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?\"'()[]")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}
