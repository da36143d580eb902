package lane

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/models"
)

func searchOpts(req Request) backend.SearchOptions {
	return backend.SearchOptions{
		K:         req.K,
		TimeRange: req.Constraints.TimeRange,
		Sources:   req.Constraints.Sources,
	}
}

// SearchLane runs a SearchProvider under a lane identity. The web, news,
// and markets lanes are all instances of it with different providers.
type SearchLane struct {
	id       models.LaneID
	provider backend.SearchProvider
}

func NewSearchLane(id models.LaneID, provider backend.SearchProvider) *SearchLane {
	return &SearchLane{id: id, provider: provider}
}

func (l *SearchLane) ID() models.LaneID { return l.id }

func (l *SearchLane) Fetch(ctx context.Context, req Request) ([]models.Document, error) {
	return l.provider.Search(ctx, req.Query.Text, searchOpts(req))
}

// VectorLane embeds the query text and runs a similarity search. The two
// calls share the lane budget; a slow embedder eats into search time.
type VectorLane struct {
	embedder backend.Embedder
	store    backend.VectorStore
}

func NewVectorLane(embedder backend.Embedder, store backend.VectorStore) *VectorLane {
	return &VectorLane{embedder: embedder, store: store}
}

func (l *VectorLane) ID() models.LaneID { return models.LaneVector }

func (l *VectorLane) Fetch(ctx context.Context, req Request) ([]models.Document, error) {
	vectors, err := l.embedder.Embed(ctx, []string{req.Query.Text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed query: %w: empty embedding", backend.ErrUnavailable)
	}
	return l.store.Search(ctx, vectors[0], searchOpts(req))
}

// KeywordLane runs the exact-match keyword index.
type KeywordLane struct {
	index backend.KeywordIndex
}

func NewKeywordLane(index backend.KeywordIndex) *KeywordLane {
	return &KeywordLane{index: index}
}

func (l *KeywordLane) ID() models.LaneID { return models.LaneKeyword }

func (l *KeywordLane) Fetch(ctx context.Context, req Request) ([]models.Document, error) {
	return l.index.Search(ctx, req.Query.Text, searchOpts(req))
}

// kgExpandDepth bounds graph traversal. One hop keeps the lane inside the
// tightest profile budgets.
const kgExpandDepth = 1

// KGLane extracts candidate entities from the query and expands them
// through the graph store.
type KGLane struct {
	graph backend.GraphStore
}

func NewKGLane(graph backend.GraphStore) *KGLane {
	return &KGLane{graph: graph}
}

func (l *KGLane) ID() models.LaneID { return models.LaneKG }

func (l *KGLane) Fetch(ctx context.Context, req Request) ([]models.Document, error) {
	entities := ExtractEntities(req.Query.Text)
	if len(entities) == 0 {
		// Fall back to the raw query as a single entity rather than
		// returning nothing for all-lowercase queries.
		entities = []string{strings.TrimSpace(req.Query.Text)}
	}
	return l.graph.Expand(ctx, entities, kgExpandDepth, searchOpts(req))
}

// ExtractEntities pulls capitalized token runs out of the query text as
// graph seed candidates. A leading sentence-initial word only counts when
// it recurs or is followed by another capitalized token.
func ExtractEntities(text string) []string {
	var entities []string
	var run []string
	seen := make(map[string]bool)

	flush := func(startIdx int) {
		if len(run) == 0 {
			return
		}
		// A lone capitalized first word is usually just sentence case.
		if startIdx == 0 && len(run) == 1 {
			run = run[:0]
			return
		}
		entity := strings.Join(run, " ")
		if !seen[entity] {
			seen[entity] = true
			entities = append(entities, entity)
		}
		run = run[:0]
	}

	words := strings.Fields(text)
	runStart := -1
	for i, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if trimmed != "" && unicode.IsUpper([]rune(trimmed)[0]) {
			if len(run) == 0 {
				runStart = i
			}
			run = append(run, trimmed)
			// Trailing punctuation ends the run: "Redis, Memcached" is
			// two entities, not one.
			if !strings.HasSuffix(w, trimmed) {
				flush(runStart)
			}
			continue
		}
		flush(runStart)
	}
	flush(runStart)
	return entities
}
