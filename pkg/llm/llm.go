// Package llm defines the answer synthesis capability and its two
// implementations: an OpenAI-compatible streaming HTTP client and an
// extractive fallback that composes an answer from top-ranked snippets
// when no model is reachable.
package llm

import (
	"context"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Chunk is one increment of a streamed synthesis. Exactly one terminal
// chunk is delivered per stream: Done with the complete text, or Err.
type Chunk struct {
	// Text is the token delta for incremental chunks, the full answer on
	// the Done chunk.
	Text string

	// Done marks the terminal chunk of a successful stream.
	Done bool

	// Err terminates the stream on failure.
	Err error
}

// Request carries everything the synthesizer needs: the question and the
// fused corpus to ground the answer in.
type Request struct {
	Query string
	Mode  models.Mode

	// Corpus is the ranked fused list; implementations use the top
	// documents as grounding context.
	Corpus []models.FusedDocument

	// Disclose asks for an explicit uncertainty disclosure, set when
	// retrieval produced nothing.
	Disclose bool
}

// Synthesizer streams an answer for a request. The returned channel is
// closed after the terminal chunk. Implementations must stop generating
// promptly when ctx is cancelled.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (<-chan Chunk, error)
}
