package citation

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/fathomsearch/fathom/pkg/models"
)

// negations flip the polarity of a claim.
var negations = map[string]bool{
	"not": true, "no": true, "never": true, "without": true,
	"cannot": true, "isn't": true, "aren't": true, "wasn't": true,
	"doesn't": true, "don't": true, "won't": true,
}

// antonymPairs flag weakly conflicting directional claims.
var antonymPairs = [][2]string{
	{"increase", "decrease"}, {"increases", "decreases"},
	{"rise", "fall"}, {"rising", "falling"},
	{"faster", "slower"}, {"higher", "lower"},
	{"safe", "unsafe"}, {"effective", "ineffective"},
	{"growth", "decline"},
}

// sharedTopicFloor is the minimum content-token overlap for two passages
// to count as claims about the same topic.
const sharedTopicFloor = 0.2

// detectDisagreements runs the contradiction rule set over the cited
// passages, grouped by answer sentence: passages cited together support
// the same claim, so structural conflicts between them are disagreements.
func detectDisagreements(sentences []models.AnswerSentence, citations []models.Citation) []models.Disagreement {
	byMarker := make(map[int][]models.Citation)
	for _, c := range citations {
		byMarker[c.MarkerID] = append(byMarker[c.MarkerID], c)
	}

	var out []models.Disagreement
	seen := make(map[string]bool)

	for _, sentence := range sentences {
		if len(sentence.Citations) < 2 {
			continue
		}
		for i := 0; i < len(sentence.Citations); i++ {
			for j := i + 1; j < len(sentence.Citations); j++ {
				mi, mj := sentence.Citations[i], sentence.Citations[j]
				severity := conflictBetween(byMarker[mi], byMarker[mj])
				if severity == "" {
					continue
				}
				key := strconv.Itoa(mi) + ":" + strconv.Itoa(mj)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, models.Disagreement{
					Topic:    topicOf(sentence.Text),
					Markers:  []int{mi, mj},
					Severity: severity,
				})
			}
		}
	}
	return out
}

// conflictBetween checks every passage pair across two markers and
// returns the strongest conflict found, "" when none.
func conflictBetween(a, b []models.Citation) models.DisagreementSeverity {
	var worst models.DisagreementSeverity
	for _, ca := range a {
		for _, cb := range b {
			s := passageConflict(ca.Passage, cb.Passage)
			if severityRank(s) > severityRank(worst) {
				worst = s
			}
		}
	}
	return worst
}

func severityRank(s models.DisagreementSeverity) int {
	switch s {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	}
	return 0
}

// passageConflict applies the structural rules to one passage pair:
// opposite polarity on a shared claim is high, contradictory numeric
// claims are medium (high when the values diverge by half or more), and
// directional antonyms are low.
func passageConflict(a, b string) models.DisagreementSeverity {
	if tokenOverlap(a, b) < sharedTopicFloor {
		return ""
	}

	if hasNegation(a) != hasNegation(b) {
		return models.SeverityHigh
	}

	if sev := numericConflict(a, b); sev != "" {
		return sev
	}

	tokensA := contentTokens(a)
	tokensB := contentTokens(b)
	for _, pair := range antonymPairs {
		if (tokensA[pair[0]] && tokensB[pair[1]]) || (tokensA[pair[1]] && tokensB[pair[0]]) {
			return models.SeverityLow
		}
	}
	return ""
}

func hasNegation(s string) bool {
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if negations[strings.Trim(tok, ".,:;!?\"'()")] {
			return true
		}
	}
	return false
}

// quantity is a number with its trailing unit token ("6371 km" → 6371,
// "km").
type quantity struct {
	value float64
	unit  string
}

// numericConflict reports contradictory numeric claims: both passages
// state a quantity in the same unit but with different values.
func numericConflict(a, b string) models.DisagreementSeverity {
	qa := quantities(a)
	qb := quantities(b)
	for _, x := range qa {
		for _, y := range qb {
			if x.unit == "" || x.unit != y.unit || x.value == y.value {
				continue
			}
			larger := x.value
			if y.value > larger {
				larger = y.value
			}
			diff := x.value - y.value
			if diff < 0 {
				diff = -diff
			}
			if larger > 0 && diff/larger >= 0.5 {
				return models.SeverityHigh
			}
			return models.SeverityMedium
		}
	}
	return ""
}

// quantities extracts number+unit pairs from a passage. Comma group
// separators are stripped ("6,378" → 6378).
func quantities(s string) []quantity {
	fields := strings.Fields(s)
	var out []quantity
	for i, f := range fields {
		numStr := strings.Trim(strings.ReplaceAll(f, ",", ""), ".,:;!?\"'()")
		v, err := strconv.ParseFloat(strings.TrimSuffix(numStr, "%"), 64)
		if err != nil {
			continue
		}
		q := quantity{value: v}
		if strings.HasSuffix(numStr, "%") {
			q.unit = "%"
		} else if i+1 < len(fields) {
			unit := strings.ToLower(strings.Trim(fields[i+1], ".,:;!?\"'()"))
			if unit != "" && isUnitToken(unit) {
				q.unit = unit
			}
		}
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].unit < out[j].unit })
	return out
}

// isUnitToken accepts short lowercase alphabetic tokens as units (km, kg,
// ms, mph, percent).
func isUnitToken(tok string) bool {
	if len(tok) == 0 || len(tok) > 8 {
		return false
	}
	for _, r := range tok {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// topicOf derives a short topic label from the affected sentence.
func topicOf(sentence string) string {
	const maxLen = 80
	s := strings.TrimSpace(sentence)
	if len(s) > maxLen {
		s = strings.TrimSpace(truncateBytes(s, maxLen))
	}
	return s
}
