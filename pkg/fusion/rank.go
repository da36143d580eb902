package fusion

import (
	"sort"
	"strings"

	"github.com/fathomsearch/fathom/pkg/models"
)

// rank computes the final weighted total score for every fused document
// and sorts in place. The RRF component is normalized against the best
// score in the batch so the fixed weights compare like with like.
func (f *Fuser) rank(fused []models.FusedDocument) {
	var maxRRF float64
	for i := range fused {
		if fused[i].RRFScore > maxRRF {
			maxRRF = fused[i].RRFScore
		}
	}

	for i := range fused {
		d := &fused[i]
		d.Components.Authority = f.authority(d.Document.Domain)
		d.Components.Quality = qualityScore(d.Document)
		d.Components.Length = lengthScore(d.Document)

		normRRF := 0.0
		if maxRRF > 0 {
			normRRF = d.RRFScore / maxRRF
		}
		d.TotalScore = f.cfg.WeightRRF*normRRF +
			f.cfg.WeightAuthority*d.Components.Authority +
			f.cfg.WeightQuality*d.Components.Quality +
			f.cfg.WeightLength*d.Components.Length
	}

	sort.SliceStable(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if len(a.Lanes) != len(b.Lanes) {
			return len(a.Lanes) > len(b.Lanes)
		}
		if a.Components.Authority != b.Components.Authority {
			return a.Components.Authority > b.Components.Authority
		}
		return a.Document.ContentHash < b.Document.ContentHash
	})
}

// authority looks up the bounded [0,1] domain authority, walking up the
// subdomain chain so "en.wikipedia.org" inherits "wikipedia.org". Unknown
// domains score zero.
func (f *Fuser) authority(domain string) float64 {
	for domain != "" {
		if score, ok := f.cfg.Authority[domain]; ok {
			return score
		}
		dot := strings.IndexByte(domain, '.')
		if dot < 0 {
			return 0
		}
		domain = domain[dot+1:]
	}
	return 0
}

// qualityScore is a cheap readability/completeness heuristic over [0,1]:
// presence of title, author, publication date, and content that is neither
// a stub nor a wall of unbroken text.
func qualityScore(doc models.Document) float64 {
	var score float64
	if strings.TrimSpace(doc.Title) != "" {
		score += 0.3
	}
	if doc.Author != "" {
		score += 0.1
	}
	if doc.PublishedAt != nil {
		score += 0.1
	}

	words := strings.Fields(doc.Content)
	if len(words) >= 30 {
		score += 0.25
	}
	// Sentence structure: some terminal punctuation relative to length.
	sentences := strings.Count(doc.Content, ".") + strings.Count(doc.Content, "!") + strings.Count(doc.Content, "?")
	if sentences > 0 && len(words)/max(sentences, 1) <= 60 {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}
	return score
}

// lengthScore rewards substantive content and a usable snippet, saturating
// at 300 words.
func lengthScore(doc models.Document) float64 {
	words := len(strings.Fields(doc.Content))
	score := float64(words) / 300
	if score > 0.8 {
		score = 0.8
	}
	if strings.TrimSpace(doc.Snippet) != "" {
		score += 0.2
	}
	return score
}
