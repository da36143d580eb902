package lane

import (
	"fmt"

	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/models"
)

// Backends bundles the collaborator implementations the registry wires
// lanes over. Nil entries disable the corresponding lanes regardless of
// configuration.
type Backends struct {
	Web      backend.SearchProvider
	News     backend.SearchProvider
	Markets  backend.SearchProvider
	Vector   backend.VectorStore
	Embedder backend.Embedder
	Keyword  backend.KeywordIndex
	Graph    backend.GraphStore
}

// Registry holds one Runner per configured retrieval lane. Built once at
// startup and read-only afterwards.
type Registry struct {
	runners map[models.LaneID]*Runner
	order   []models.LaneID
}

// NewRegistry builds runners for every lane that is both enabled in the
// configuration and has its backend wired. A shared limiter keeps the
// per-provider buckets global across queries.
func NewRegistry(cfg *config.Config, backends Backends, limiter *Limiter) (*Registry, error) {
	lanes := map[models.LaneID]Lane{}

	if backends.Web != nil {
		lanes[models.LaneWeb] = NewSearchLane(models.LaneWeb, backends.Web)
	}
	if backends.News != nil {
		lanes[models.LaneNews] = NewSearchLane(models.LaneNews, backends.News)
	}
	if backends.Markets != nil {
		lanes[models.LaneMarkets] = NewSearchLane(models.LaneMarkets, backends.Markets)
	}
	if backends.Vector != nil && backends.Embedder != nil {
		lanes[models.LaneVector] = NewVectorLane(backends.Embedder, backends.Vector)
	}
	if backends.Keyword != nil {
		lanes[models.LaneKeyword] = NewKeywordLane(backends.Keyword)
	}
	if backends.Graph != nil {
		lanes[models.LaneKG] = NewKGLane(backends.Graph)
	}

	r := &Registry{runners: make(map[models.LaneID]*Runner)}
	for _, id := range models.RetrievalLanes {
		l, ok := lanes[id]
		if !ok {
			continue
		}
		settings := cfg.LaneSetting(id)
		if !settings.Enabled {
			continue
		}
		if settings.MaxRetries < 0 || settings.MaxRetries > 2 {
			return nil, fmt.Errorf("lane %s: max_retries %d out of range [0,2]", id, settings.MaxRetries)
		}
		r.runners[id] = NewRunner(l, settings, limiter)
		r.order = append(r.order, id)
	}
	return r, nil
}

// Runner returns the runner for a lane, nil when the lane is not wired.
func (r *Registry) Runner(id models.LaneID) *Runner {
	return r.runners[id]
}

// Lanes returns the wired lane IDs in stable order.
func (r *Registry) Lanes() []models.LaneID {
	return r.order
}
