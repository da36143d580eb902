// Package citation aligns synthesized answer sentences to the fused
// corpus: punctuation-aware sentence segmentation, passage similarity
// scoring (embedding cosine with a token-Jaccard fallback), first-occurrence
// marker assignment, an ordered bibliography, and rule-based disagreement
// detection over the cited passages.
package citation

import (
	"strings"
	"unicode"
)

// abbreviations that end with a period but do not terminate a sentence.
// Lowercased, without the trailing period.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "fig": true, "al": true, "approx": true,
	"no": true, "vol": true, "inc": true, "ltd": true, "co": true,
	"u.s": true, "u.k": true,
}

// SplitSentences segments text into sentences on terminal punctuation,
// keeping abbreviations, decimal numbers, and initials intact. The
// terminal punctuation stays attached to its sentence.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	flush := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Consume a run of terminal punctuation ("?!", "...").
		end := i + 1
		for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?') {
			end++
		}
		if r == '.' && end == i+1 && !sentenceBoundary(runes, i) {
			continue
		}
		// Trailing quote or bracket belongs to the sentence.
		for end < len(runes) && (runes[end] == '"' || runes[end] == '\'' || runes[end] == ')' || runes[end] == ']') {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		flush(end)
		i = end - 1
	}
	flush(len(runes))
	return sentences
}

// sentenceBoundary reports whether the period at index i ends a sentence,
// rejecting decimals ("6371.2"), initials ("J. Smith"), and known
// abbreviations ("Dr.", "e.g.").
func sentenceBoundary(runes []rune, i int) bool {
	// Decimal number: digit on both sides.
	if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
		return false
	}

	// Word immediately before the period.
	j := i
	for j > 0 && !unicode.IsSpace(runes[j-1]) {
		j--
	}
	word := strings.ToLower(strings.TrimRight(string(runes[j:i]), "."))
	word = strings.TrimLeft(word, "\"'([")
	if abbreviations[word] {
		return false
	}
	// Single-letter initial: "J. Smith".
	if len(word) == 1 && unicode.IsLetter([]rune(word)[0]) {
		return false
	}
	return true
}

// SplitPassages chunks document content into alignment units: sentences,
// merged upward so no passage is shorter than minWords (trailing fragment
// joins its predecessor).
func SplitPassages(content string, minWords int) []string {
	sentences := SplitSentences(content)
	if len(sentences) == 0 {
		return nil
	}
	var passages []string
	var current []string
	count := 0
	for _, s := range sentences {
		current = append(current, s)
		count += len(strings.Fields(s))
		if count >= minWords {
			passages = append(passages, strings.Join(current, " "))
			current = nil
			count = 0
		}
	}
	if len(current) > 0 {
		tail := strings.Join(current, " ")
		if len(passages) > 0 && count < minWords {
			passages[len(passages)-1] += " " + tail
		} else {
			passages = append(passages, tail)
		}
	}
	return passages
}
