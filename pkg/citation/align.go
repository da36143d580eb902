package citation

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/models"
)

// passageMinWords is the smallest alignment unit; shorter sentences merge
// with their neighbors.
const passageMinWords = 8

// Result is the full output of an alignment pass.
type Result struct {
	Sentences     []models.AnswerSentence
	Citations     []models.Citation
	Bibliography  []models.BibliographyEntry
	Disagreements []models.Disagreement
}

// Aligner aligns answer sentences to corpus passages. The embedder is
// optional: when absent, or when an embedding call fails inside the
// alignment budget, similarity falls back to normalized token-overlap
// Jaccard.
type Aligner struct {
	cfg      *config.CitationConfig
	embedder backend.Embedder
}

func NewAligner(cfg *config.CitationConfig, embedder backend.Embedder) *Aligner {
	return &Aligner{cfg: cfg, embedder: embedder}
}

type passage struct {
	doc  *models.FusedDocument
	text string
}

// Align segments the answer, scores each sentence against every passage
// of the fused corpus, assigns markers in first-occurrence order, and
// runs disagreement detection over the cited passages.
//
// With an empty corpus every sentence is tagged no-source.
func (a *Aligner) Align(ctx context.Context, answer string, corpus []models.FusedDocument) Result {
	sentences := SplitSentences(answer)
	if len(sentences) == 0 {
		return Result{}
	}

	var passages []passage
	for i := range corpus {
		doc := &corpus[i]
		content := doc.Document.Content
		if strings.TrimSpace(content) == "" {
			content = doc.Document.Snippet
		}
		for _, p := range SplitPassages(content, passageMinWords) {
			passages = append(passages, passage{doc: doc, text: p})
		}
	}

	sim := a.similarityMatrix(ctx, sentences, passages)

	res := Result{Sentences: make([]models.AnswerSentence, 0, len(sentences))}
	markerByDoc := make(map[string]int) // content hash → marker

	for si, text := range sentences {
		matches := a.topMatches(sim[si])
		sentence := models.AnswerSentence{Text: text}

		if len(matches) == 0 {
			sentence.NoSource = true
			res.Sentences = append(res.Sentences, sentence)
			continue
		}

		for _, m := range matches {
			hash := passages[m.idx].doc.Document.ContentHash
			marker, ok := markerByDoc[hash]
			if !ok {
				marker = len(markerByDoc) + 1
				markerByDoc[hash] = marker
				res.Bibliography = append(res.Bibliography, bibliographyEntry(marker, passages[m.idx]))
			}
			res.Citations = append(res.Citations, models.Citation{
				MarkerID:   marker,
				DocumentID: hash,
				Passage:    passages[m.idx].text,
				Similarity: m.score,
				Confidence: m.score,
			})
			if !containsInt(sentence.Citations, marker) {
				sentence.Citations = append(sentence.Citations, marker)
			}
			if m.score > sentence.Confidence {
				sentence.Confidence = m.score
			}
		}
		res.Sentences = append(res.Sentences, sentence)
	}

	res.Disagreements = detectDisagreements(res.Sentences, res.Citations)
	return res
}

type match struct {
	idx   int
	score float64
}

// topMatches keeps the top-k passages at or above the similarity
// threshold, best first.
func (a *Aligner) topMatches(scores []float64) []match {
	var matches []match
	for i, s := range scores {
		if s >= a.cfg.SimThreshold {
			matches = append(matches, match{idx: i, score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > a.cfg.TopK {
		matches = matches[:a.cfg.TopK]
	}
	return matches
}

// similarityMatrix returns sim[sentence][passage]. Embedding cosine when
// the embedder is available, token Jaccard otherwise.
func (a *Aligner) similarityMatrix(ctx context.Context, sentences []string, passages []passage) [][]float64 {
	sim := make([][]float64, len(sentences))
	for i := range sim {
		sim[i] = make([]float64, len(passages))
	}
	if len(passages) == 0 {
		return sim
	}

	if a.embedder != nil {
		texts := make([]string, 0, len(sentences)+len(passages))
		texts = append(texts, sentences...)
		for _, p := range passages {
			texts = append(texts, p.text)
		}
		vectors, err := a.embedder.Embed(ctx, texts)
		if err == nil && len(vectors) == len(texts) {
			for i := range sentences {
				for j := range passages {
					sim[i][j] = cosine(vectors[i], vectors[len(sentences)+j])
				}
			}
			return sim
		}
		slog.Warn("Embedding failed during alignment, falling back to token overlap", "error", err)
	}

	for i, s := range sentences {
		for j, p := range passages {
			sim[i][j] = tokenOverlap(s, p.text)
		}
	}
	return sim
}

// cosine similarity of two vectors; zero for mismatched or zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// stopwords excluded from token overlap so function words do not inflate
// similarity.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"is": true, "are": true, "was": true, "were": true, "to": true,
	"and": true, "or": true, "for": true, "with": true, "by": true,
	"at": true, "it": true, "its": true, "as": true, "that": true,
	"this": true, "be": true, "has": true, "have": true,
}

// tokenOverlap is the Jaccard similarity of content-word sets.
func tokenOverlap(a, b string) float64 {
	setA := contentTokens(a)
	setB := contentTokens(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	return float64(inter) / float64(len(setA)+len(setB)-inter)
}

func contentTokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?\"'()[]")
		if tok != "" && !stopwords[tok] {
			set[tok] = true
		}
	}
	return set
}

func bibliographyEntry(marker int, p passage) models.BibliographyEntry {
	doc := p.doc.Document
	excerpt := truncateBytes(p.text, 200)
	return models.BibliographyEntry{
		MarkerID:    marker,
		Title:       doc.Title,
		URL:         doc.URL,
		Domain:      doc.Domain,
		PublishedAt: doc.PublishedAt,
		Author:      doc.Author,
		Excerpt:     excerpt,
	}
}

// truncateBytes caps s at max bytes, backing up so a multi-byte rune is
// never split.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
