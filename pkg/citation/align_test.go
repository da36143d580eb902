package citation

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/models"
)

func fusedDoc(url, title, content string) models.FusedDocument {
	d := models.Document{URL: url, Title: title, Content: content}
	d.Normalize()
	return models.FusedDocument{Document: d}
}

func newAligner() *Aligner {
	return NewAligner(config.Default().Citation, nil)
}

func TestAlignCitesSupportingPassage(t *testing.T) {
	corpus := []models.FusedDocument{
		fusedDoc("https://en.wikipedia.org/wiki/Paris", "Paris",
			"Paris is the capital of France, the capital city of France."),
		fusedDoc("https://example.org/unrelated", "Gardening",
			"Tomatoes grow best in full sun with regular deep watering through summer months."),
	}

	res := newAligner().Align(context.Background(),
		"Paris is the capital city of France.", corpus)

	require.Len(t, res.Sentences, 1)
	require.NotEmpty(t, res.Sentences[0].Citations, "supported sentence must carry a citation")
	assert.False(t, res.Sentences[0].NoSource)

	require.Len(t, res.Bibliography, 1)
	assert.Equal(t, 1, res.Bibliography[0].MarkerID)
	assert.Equal(t, "en.wikipedia.org", res.Bibliography[0].Domain)

	require.NotEmpty(t, res.Citations)
	assert.Equal(t, corpus[0].Document.ContentHash, res.Citations[0].DocumentID)
	assert.GreaterOrEqual(t, res.Citations[0].Similarity, config.Default().Citation.SimThreshold)
}

func TestAlignEmptyCorpusTagsNoSource(t *testing.T) {
	res := newAligner().Align(context.Background(),
		"The answer is unknown. No sources were reachable.", nil)

	require.Len(t, res.Sentences, 2)
	for _, s := range res.Sentences {
		assert.True(t, s.NoSource)
		assert.Empty(t, s.Citations)
	}
	assert.Empty(t, res.Bibliography)
	assert.Empty(t, res.Citations)
}

func TestAlignMarkersFirstOccurrenceOrder(t *testing.T) {
	docA := fusedDoc("https://a.org/1", "A",
		"Solar panels convert sunlight into electricity using photovoltaic cells made of silicon.")
	docB := fusedDoc("https://b.org/2", "B",
		"Wind turbines convert kinetic wind energy into electricity using rotating blades and generators.")

	answer := "Solar panels convert sunlight into electricity using photovoltaic cells. " +
		"Wind turbines convert kinetic wind energy into electricity using rotating blades. " +
		"Solar panels convert sunlight into electricity using photovoltaic cells."

	res := newAligner().Align(context.Background(), answer, []models.FusedDocument{docB, docA})

	require.Len(t, res.Sentences, 3)
	require.NotEmpty(t, res.Sentences[0].Citations)
	require.NotEmpty(t, res.Sentences[1].Citations)
	require.NotEmpty(t, res.Sentences[2].Citations)

	// First cited document gets marker 1; reuse shares the marker.
	assert.Equal(t, []int{1}, res.Sentences[0].Citations)
	assert.Equal(t, []int{2}, res.Sentences[1].Citations)
	assert.Equal(t, []int{1}, res.Sentences[2].Citations)

	// Markers are contiguous and bibliography order is first appearance.
	require.Len(t, res.Bibliography, 2)
	assert.Equal(t, 1, res.Bibliography[0].MarkerID)
	assert.Equal(t, docA.Document.URL, res.Bibliography[0].URL)
	assert.Equal(t, 2, res.Bibliography[1].MarkerID)
	assert.Equal(t, docB.Document.URL, res.Bibliography[1].URL)
}

func TestAlignTopKCap(t *testing.T) {
	// Four near-identical documents; only TopK citations survive per
	// sentence.
	content := "Honey never spoils because its low moisture and acidity stop microbial growth."
	fillers := []string{"Indeed.", "Truly.", "Certainly.", "Remarkably."}
	urls := []string{"https://a.org/1", "https://b.org/2", "https://c.org/3", "https://d.org/4"}
	var corpus []models.FusedDocument
	for i, u := range urls {
		corpus = append(corpus, fusedDoc(u, "Honey", content+" "+fillers[i]))
	}

	res := newAligner().Align(context.Background(),
		"Honey never spoils because its low moisture and acidity stop microbial growth.", corpus)

	require.Len(t, res.Sentences, 1)
	assert.LessOrEqual(t, len(res.Sentences[0].Citations), config.Default().Citation.TopK)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}), "mismatched dims")
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}), "zero vector")
}

func TestTokenOverlapIgnoresStopwords(t *testing.T) {
	a := "the capital of France is Paris"
	b := "Paris capital France"
	assert.InDelta(t, 1.0, tokenOverlap(a, b), 1e-9)
	assert.Equal(t, 0.0, tokenOverlap("", "anything here"))
}

func TestTruncateBytesKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 100) // 2 bytes per rune

	got := truncateBytes(s, 7)
	assert.True(t, utf8.ValidString(got), "cut must land on a rune boundary")
	assert.Equal(t, 6, len(got))

	assert.Equal(t, "abc", truncateBytes("abc", 10))
	assert.Equal(t, "ab", truncateBytes("abcd", 2))
	assert.Equal(t, "", truncateBytes("日本語", 2), "a single wide rune cannot fit")
}

func TestBibliographyExcerptValidUTF8(t *testing.T) {
	p := passage{
		text: strings.Repeat("日本語のテキスト。", 40),
		doc:  &models.FusedDocument{Document: models.Document{Title: "日本", URL: "https://example.jp/a"}},
	}
	entry := bibliographyEntry(1, p)
	assert.LessOrEqual(t, len(entry.Excerpt), 200)
	assert.True(t, utf8.ValidString(entry.Excerpt))
}
