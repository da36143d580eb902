package llm

import (
	"context"
	"fmt"
	"strings"
)

// UncertaintyDisclosure is prepended to answers produced without any
// retrieval output.
const UncertaintyDisclosure = "No sources could be retrieved for this query, so the following is uncertain."

// fallbackDocs bounds how many snippets the extractive answer stitches
// together.
const fallbackDocs = 3

// Fallback is an extractive synthesizer: it builds the answer from the
// top-ranked snippets verbatim. Used when no model endpoint is configured
// and when the model call fails inside the synthesis budget.
type Fallback struct{}

func NewFallback() *Fallback { return &Fallback{} }

// Synthesize emits the extractive answer as a short stream: one chunk per
// snippet sentence, then the terminal chunk.
func (f *Fallback) Synthesize(ctx context.Context, req Request) (<-chan Chunk, error) {
	answer := f.compose(req)
	out := make(chan Chunk, fallbackDocs+2)
	go func() {
		defer close(out)
		for _, part := range strings.SplitAfter(answer, ". ") {
			if part == "" {
				continue
			}
			select {
			case out <- Chunk{Text: part}:
			case <-ctx.Done():
				out <- Chunk{Err: ctx.Err()}
				return
			}
		}
		out <- Chunk{Done: true, Text: answer}
	}()
	return out, nil
}

func (f *Fallback) compose(req Request) string {
	if len(req.Corpus) == 0 || req.Disclose {
		return fmt.Sprintf("%s The question was: %s", UncertaintyDisclosure, req.Query)
	}

	var parts []string
	for i, fd := range req.Corpus {
		if i >= fallbackDocs {
			break
		}
		snippet := strings.TrimSpace(fd.Document.Snippet)
		if snippet == "" {
			snippet = firstSentence(fd.Document.Content)
		}
		if snippet == "" {
			continue
		}
		if !strings.HasSuffix(snippet, ".") && !strings.HasSuffix(snippet, "!") && !strings.HasSuffix(snippet, "?") {
			snippet += "."
		}
		parts = append(parts, snippet)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s The question was: %s", UncertaintyDisclosure, req.Query)
	}
	return strings.Join(parts, " ")
}

func firstSentence(content string) string {
	content = strings.TrimSpace(content)
	for i, r := range content {
		if r == '.' || r == '!' || r == '?' {
			return content[:i+1]
		}
	}
	return truncateBytes(content, 200)
}

var _ Synthesizer = (*Fallback)(nil)
