package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// contextDocs bounds how many fused documents are inlined into the
// synthesis prompt.
const contextDocs = 8

// OpenAIClient streams chat completions from any OpenAI-compatible
// endpoint (chat/completions with stream=true).
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIClient builds a streaming client. baseURL is the API root
// without the /chat/completions suffix.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 0}, // deadline comes from ctx
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Synthesize opens the streaming completion and forwards token deltas as
// chunks. The channel closes after the terminal chunk.
func (c *OpenAIClient) Synthesize(ctx context.Context, req Request) (<-chan Chunk, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req)},
			{Role: "user", Content: userPrompt(req)},
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("synthesis request: unexpected status %d", resp.StatusCode)
	}

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		start := time.Now()
		var full strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				break
			}
			var delta chatDelta
			if err := json.Unmarshal([]byte(payload), &delta); err != nil {
				slog.Warn("Skipping malformed completion delta", "error", err)
				continue
			}
			if len(delta.Choices) == 0 {
				continue
			}
			if text := delta.Choices[0].Delta.Content; text != "" {
				full.WriteString(text)
				select {
				case out <- Chunk{Text: text}:
				case <-ctx.Done():
					out <- Chunk{Err: ctx.Err()}
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			out <- Chunk{Err: fmt.Errorf("read completion stream: %w", err)}
			return
		}
		slog.Debug("Synthesis stream complete", "model", c.model, "duration", time.Since(start), "chars", full.Len())
		out <- Chunk{Done: true, Text: full.String()}
	}()
	return out, nil
}

func systemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are a research assistant. Answer the question using only the provided sources. ")
	b.WriteString("Write complete sentences; do not include citation markers, they are added later.")
	if req.Disclose {
		b.WriteString(" No sources are available: state clearly that the answer is uncertain and based on general knowledge.")
	}
	return b.String()
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Query)
	if len(req.Corpus) > 0 {
		b.WriteString("\nSources:\n")
		n := len(req.Corpus)
		if n > contextDocs {
			n = contextDocs
		}
		for i := 0; i < n; i++ {
			doc := req.Corpus[i].Document
			content := doc.Content
			if content == "" {
				content = doc.Snippet
			}
			content = truncateBytes(content, 1200)
			fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, doc.Title, doc.Domain, content)
		}
	}
	return b.String()
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

var _ Synthesizer = (*OpenAIClient)(nil)
