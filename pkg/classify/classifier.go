// Package classify assigns an incoming query to one of the four modes
// using cheap lexical heuristics. Classification is a pure function with
// no I/O; the resulting mode selects the deadline and budget profile.
package classify

import (
	"strings"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Keyword families, matched case-insensitively on word boundaries.
var (
	multimediaTerms = []string{
		"image", "images", "picture", "photo", "video", "videos", "audio",
		"podcast", "diagram", "chart", "screenshot", "infographic",
	}
	researchTerms = []string{
		"compare", "comparison", "versus", "vs", "trade-off", "tradeoffs",
		"literature", "survey", "systematic", "meta-analysis", "evidence",
		"pros and cons", "in depth", "comprehensive", "state of the art",
	}
	technicalTerms = []string{
		"algorithm", "implementation", "architecture", "protocol", "api",
		"latency", "throughput", "benchmark", "compile", "deploy", "kernel",
		"database", "index", "b-tree", "lsm", "cache", "concurrency",
		"stack trace", "error code", "regression",
	}
)

// longQueryWords is the word count above which a query is treated as a
// research question even without research keywords.
const longQueryWords = 40

// Classify maps query text and attachment presence to a mode.
// Deterministic; defaults to simple.
func Classify(text string, attachments []string) models.Mode {
	if len(attachments) > 0 {
		return models.ModeMultimedia
	}

	lowered := " " + strings.ToLower(text) + " "
	if containsAny(lowered, multimediaTerms) {
		return models.ModeMultimedia
	}
	if containsAny(lowered, researchTerms) {
		return models.ModeResearch
	}
	if len(strings.Fields(text)) > longQueryWords {
		return models.ModeResearch
	}
	if containsAny(lowered, technicalTerms) {
		return models.ModeTechnical
	}
	return models.ModeSimple
}

// containsAny reports whether any term occurs in s as a whole word.
// Terms with spaces are matched as substrings.
func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(term, " ") {
			if strings.Contains(s, term) {
				return true
			}
			continue
		}
		if containsWord(s, term) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if isBoundary(s, start-1) && isBoundary(s, end) {
			return true
		}
		idx = start + 1
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}
