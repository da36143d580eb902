package backend

import (
	"context"
	"time"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Fake is a configurable in-memory backend implementing every capability
// in this package. Used by tests and by fathomctl's offline mode.
type Fake struct {
	// Docs are returned (capped at opts.K) by every search method.
	Docs []models.Document

	// Delay is slept (cancellably) before responding.
	Delay time.Duration

	// Err, when set, is returned instead of documents.
	Err error

	// Vectors returned by Embed, one per input text. When nil, Embed
	// returns a deterministic unit vector per text.
	Vectors [][]float32
}

func (f *Fake) respond(ctx context.Context, k int) ([]models.Document, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	docs := f.Docs
	if k > 0 && len(docs) > k {
		docs = docs[:k]
	}
	out := make([]models.Document, len(docs))
	copy(out, docs)
	return out, nil
}

func (f *Fake) Search(ctx context.Context, _ string, opts SearchOptions) ([]models.Document, error) {
	return f.respond(ctx, opts.K)
}

func (f *Fake) SearchVector(ctx context.Context, _ []float32, opts SearchOptions) ([]models.Document, error) {
	return f.respond(ctx, opts.K)
}

func (f *Fake) Expand(ctx context.Context, _ []string, _ int, opts SearchOptions) ([]models.Document, error) {
	return f.respond(ctx, opts.K)
}

func (f *Fake) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Vectors != nil {
		return f.Vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *Fake) HealthCheck(ctx context.Context) error {
	if f.Err != nil {
		return f.Err
	}
	return ctx.Err()
}

// FakeVectorStore adapts Fake to the VectorStore interface (its Search
// takes an embedding, not a query string).
type FakeVectorStore struct{ *Fake }

func (f FakeVectorStore) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]models.Document, error) {
	return f.Fake.SearchVector(ctx, embedding, opts)
}
