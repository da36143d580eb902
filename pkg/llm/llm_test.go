package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomsearch/fathom/pkg/models"
)

func collect(t *testing.T, ch <-chan Chunk) (deltas []string, final Chunk) {
	t.Helper()
	for chunk := range ch {
		if chunk.Done || chunk.Err != nil {
			final = chunk
			continue
		}
		deltas = append(deltas, chunk.Text)
	}
	return deltas, final
}

func TestOpenAIClientStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, tok := range []string{"Paris ", "is ", "the ", "capital."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/v1", "test-key", "test-model")
	ch, err := c.Synthesize(context.Background(), Request{Query: "capital of France", Mode: models.ModeSimple})
	require.NoError(t, err)

	deltas, final := collect(t, ch)
	assert.Equal(t, []string{"Paris ", "is ", "the ", "capital."}, deltas)
	require.True(t, final.Done)
	assert.Equal(t, "Paris is the capital.", final.Text)
	assert.NoError(t, final.Err)
}

func TestOpenAIClientSkipsMalformedDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", "m")
	ch, err := c.Synthesize(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	deltas, final := collect(t, ch)
	assert.Equal(t, []string{"ok"}, deltas)
	assert.True(t, final.Done)
}

func TestOpenAIClientNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", "m")
	_, err := c.Synthesize(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenAIClientCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"slow\"}}]}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := NewOpenAIClient(srv.URL, "", "m")
	ch, err := c.Synthesize(ctx, Request{Query: "q"})
	require.NoError(t, err)

	_, final := collect(t, ch)
	assert.Error(t, final.Err)
}

func TestFallbackComposesFromSnippets(t *testing.T) {
	corpus := []models.FusedDocument{
		{Document: models.Document{Snippet: "Paris is the capital of France"}},
		{Document: models.Document{Content: "France borders eight countries. It is in Europe."}},
	}

	ch, err := NewFallback().Synthesize(context.Background(), Request{Query: "capital of France", Corpus: corpus})
	require.NoError(t, err)
	_, final := collect(t, ch)

	require.True(t, final.Done)
	assert.Contains(t, final.Text, "Paris is the capital of France.")
	assert.Contains(t, final.Text, "France borders eight countries.")
	assert.NotContains(t, final.Text, UncertaintyDisclosure)
}

func TestFirstSentenceMultibyteNoTerminator(t *testing.T) {
	got := firstSentence(strings.Repeat("ü", 150)) // 2 bytes per rune, no terminator
	assert.LessOrEqual(t, len(got), 200)
	assert.True(t, utf8.ValidString(got))
}

func TestUserPromptTruncatesOnRuneBoundary(t *testing.T) {
	doc := models.FusedDocument{Document: models.Document{
		Title:   "Справка",
		Content: strings.Repeat("русский текст ", 200),
	}}
	prompt := userPrompt(Request{Query: "q", Corpus: []models.FusedDocument{doc}})
	assert.True(t, utf8.ValidString(prompt))
}

func TestFallbackEmptyCorpusDiscloses(t *testing.T) {
	ch, err := NewFallback().Synthesize(context.Background(), Request{Query: "anything", Disclose: true})
	require.NoError(t, err)
	_, final := collect(t, ch)

	require.True(t, final.Done)
	assert.True(t, strings.HasPrefix(final.Text, UncertaintyDisclosure))
	assert.Contains(t, final.Text, "anything")
}
