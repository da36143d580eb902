package citation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomsearch/fathom/pkg/models"
)

func TestDetectDisagreementsNumericConflict(t *testing.T) {
	sentences := []models.AnswerSentence{{
		Text:      "Estimates of the Earth's radius vary slightly between sources.",
		Citations: []int{1, 2},
	}}
	citations := []models.Citation{
		{MarkerID: 1, DocumentID: "a", Passage: "The Earth radius is 6371 km on average."},
		{MarkerID: 2, DocumentID: "b", Passage: "The Earth radius is 6,378 km at the equator."},
	}

	got := detectDisagreements(sentences, citations)

	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityMedium, got[0].Severity)
	assert.Equal(t, []int{1, 2}, got[0].Markers)
	assert.NotEmpty(t, got[0].Topic)
}

func TestDetectDisagreementsPolarity(t *testing.T) {
	sentences := []models.AnswerSentence{{
		Text:      "Sources differ on whether the treatment is effective.",
		Citations: []int{1, 2},
	}}
	citations := []models.Citation{
		{MarkerID: 1, Passage: "The trial showed the treatment is effective for most patients."},
		{MarkerID: 2, Passage: "The trial showed the treatment is not effective for most patients."},
	}

	got := detectDisagreements(sentences, citations)

	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityHigh, got[0].Severity)
}

func TestDetectDisagreementsLargeNumericGapIsHigh(t *testing.T) {
	sentences := []models.AnswerSentence{{
		Text:      "Reported costs differ wildly.",
		Citations: []int{1, 2},
	}}
	citations := []models.Citation{
		{MarkerID: 1, Passage: "The project cost 100 million according to the audit report."},
		{MarkerID: 2, Passage: "The project cost 400 million according to the audit report."},
	}

	got := detectDisagreements(sentences, citations)

	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityHigh, got[0].Severity)
}

func TestDetectDisagreementsAntonyms(t *testing.T) {
	sentences := []models.AnswerSentence{{
		Text:      "Analysts disagree on the direction of housing prices.",
		Citations: []int{1, 2},
	}}
	citations := []models.Citation{
		{MarkerID: 1, Passage: "Housing prices will increase through next year analysts said."},
		{MarkerID: 2, Passage: "Housing prices will decrease through next year analysts said."},
	}

	got := detectDisagreements(sentences, citations)

	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityLow, got[0].Severity)
}

func TestDetectDisagreementsNoConflict(t *testing.T) {
	sentences := []models.AnswerSentence{{
		Text:      "Both sources agree on the radius.",
		Citations: []int{1, 2},
	}}
	citations := []models.Citation{
		{MarkerID: 1, Passage: "The Earth radius is 6371 km on average."},
		{MarkerID: 2, Passage: "The mean Earth radius is 6371 km."},
	}

	assert.Empty(t, detectDisagreements(sentences, citations))
}

func TestDetectDisagreementsUnrelatedPassages(t *testing.T) {
	// Different topics: no shared-token floor, no disagreement even with
	// different numbers.
	sentences := []models.AnswerSentence{{
		Text:      "Two facts.",
		Citations: []int{1, 2},
	}}
	citations := []models.Citation{
		{MarkerID: 1, Passage: "The marathon record stands at 2 hours and one minute."},
		{MarkerID: 2, Passage: "Octopuses have 3 hearts pumping blue copper-based blood."},
	}

	assert.Empty(t, detectDisagreements(sentences, citations))
}

func TestDetectDisagreementsSingleCitationSkipped(t *testing.T) {
	sentences := []models.AnswerSentence{{
		Text:      "One source only.",
		Citations: []int{1},
	}}
	citations := []models.Citation{
		{MarkerID: 1, Passage: "The Earth radius is 6371 km."},
	}
	assert.Empty(t, detectDisagreements(sentences, citations))
}

func TestQuantities(t *testing.T) {
	got := quantities("the radius is 6,378 km and growth hit 12% overall")
	require.Len(t, got, 2)
	assert.Equal(t, quantity{value: 12, unit: "%"}, got[0])
	assert.Equal(t, quantity{value: 6378, unit: "km"}, got[1])
}

func TestTopicOfMultibyteSentence(t *testing.T) {
	topic := topicOf(strings.Repeat("中文句子", 30))
	assert.LessOrEqual(t, len(topic), 80)
	assert.True(t, utf8.ValidString(topic))
}
