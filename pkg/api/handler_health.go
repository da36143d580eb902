package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/version"
)

// healthProbeTimeout bounds each backend probe.
const healthProbeTimeout = 2 * time.Second

// handleHealth probes every registered backend concurrently and reports
// per-backend and overall status. Overall: "ok" when everything answers,
// "degraded" when some backends are down, "down" (503) when none answer.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	type probe struct {
		name string
		err  error
	}
	results := make([]probe, len(s.checks))

	var wg sync.WaitGroup
	i := 0
	for name, hc := range s.checks {
		wg.Add(1)
		go func(slot int, name string, hc backend.HealthChecker) {
			defer wg.Done()
			results[slot] = probe{name: name, err: hc.HealthCheck(ctx)}
		}(i, name, hc)
		i++
	}
	wg.Wait()

	backends := make(map[string]string, len(results))
	healthy := 0
	for _, p := range results {
		if p.err != nil {
			backends[p.name] = "down"
			continue
		}
		backends[p.name] = "ok"
		healthy++
	}

	status := "ok"
	code := http.StatusOK
	switch {
	case len(results) > 0 && healthy == 0:
		status = "down"
		code = http.StatusServiceUnavailable
	case healthy < len(results):
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":   status,
		"version":  version.Full(),
		"backends": backends,
	})
}
