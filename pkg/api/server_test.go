package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomsearch/fathom/pkg/audit"
	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/lane"
	"github.com/fathomsearch/fathom/pkg/llm"
	"github.com/fathomsearch/fathom/pkg/metrics"
	"github.com/fathomsearch/fathom/pkg/models"
	"github.com/fathomsearch/fathom/pkg/orchestrator"
)

type testEnv struct {
	server *Server
	ts     *httptest.Server
	sink   *audit.MemorySink
}

func newTestEnv(t *testing.T, backends lane.Backends) *testEnv {
	t.Helper()
	cfg := config.Default()
	registry, err := lane.NewRegistry(cfg, backends, lane.NewLimiter())
	require.NoError(t, err)

	sink := audit.NewMemorySink()
	reg := prometheus.NewRegistry()
	orch := orchestrator.New(cfg, orchestrator.Options{
		Registry: registry,
		Synth:    llm.NewFallback(),
		Sink:     sink,
		Metrics:  metrics.New(reg),
	})

	server := NewServer(cfg, orch, sink, reg)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: server, ts: ts, sink: sink}
}

func capitalDoc() models.Document {
	d := models.Document{
		URL:     "https://en.wikipedia.org/wiki/Paris",
		Title:   "Paris",
		Content: "Paris is the capital of France.",
		Snippet: "Paris is the capital of France.",
	}
	d.Normalize()
	return d
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data map[string]any
}

func readSSE(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
			current.data = data
		case line == "":
			if current.name != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestSearchStreamsEvents(t *testing.T) {
	env := newTestEnv(t, lane.Backends{
		Web: &backend.Fake{Docs: []models.Document{capitalDoc()}},
	})

	body, _ := json.Marshal(map[string]any{
		"query":    "capital of France",
		"mode":     "simple",
		"trace_id": "api-trace-1",
	})
	resp, err := http.Post(env.ts.URL+"/search", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp.Body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "final", last.name)

	finals := 0
	for _, ev := range events {
		if ev.name == "final" {
			finals++
		}
		assert.Equal(t, "api-trace-1", ev.data["trace_id"])
	}
	assert.Equal(t, 1, finals)

	// Sequence numbers strictly increase across the stream.
	prev := float64(0)
	for _, ev := range events {
		seq := ev.data["seq"].(float64)
		assert.Greater(t, seq, prev)
		prev = seq
	}
}

func TestSearchAttachmentsForceMultimedia(t *testing.T) {
	env := newTestEnv(t, lane.Backends{
		Web: &backend.Fake{Docs: []models.Document{capitalDoc()}},
	})

	body, _ := json.Marshal(map[string]any{
		"query":       "capital of France",
		"trace_id":    "api-attach",
		"attachments": []string{"eiffel.jpg"},
	})
	resp, err := http.Post(env.ts.URL+"/search", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The audit write lands just after the stream closes.
	require.Eventually(t, func() bool {
		_, err := env.sink.Get(context.Background(), "api-attach")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	rec, err := env.sink.Get(context.Background(), "api-attach")
	require.NoError(t, err)
	assert.Equal(t, models.ModeMultimedia, rec.Mode)
}

func TestSearchRejectsMissingQuery(t *testing.T) {
	env := newTestEnv(t, lane.Backends{Web: &backend.Fake{}})

	resp, err := http.Post(env.ts.URL+"/search", "application/json", strings.NewReader(`{"mode":"simple"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	env := newTestEnv(t, lane.Backends{Web: &backend.Fake{}})

	resp, err := http.Post(env.ts.URL+"/search", "application/json",
		strings.NewReader(`{"query":"q","mode":"bogus"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchDuplicateTraceConflict(t *testing.T) {
	env := newTestEnv(t, lane.Backends{
		Web: &backend.Fake{Docs: []models.Document{capitalDoc()}},
	})

	body := `{"query":"capital of France","mode":"simple","trace_id":"api-dup"}`
	resp, err := http.Post(env.ts.URL+"/search", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(env.ts.URL+"/search", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAuditLookup(t *testing.T) {
	env := newTestEnv(t, lane.Backends{
		Web: &backend.Fake{Docs: []models.Document{capitalDoc()}},
	})

	resp, err := http.Get(env.ts.URL + "/audit/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, env.sink.Write(context.Background(), &models.AuditRecord{
		TraceID:   "api-audit-1",
		QueryText: "capital of France",
		Mode:      models.ModeSimple,
		CreatedAt: time.Now().UTC(),
	}))

	resp, err = http.Get(env.ts.URL + "/audit/api-audit-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec models.AuditRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "api-audit-1", rec.TraceID)
	assert.Equal(t, models.ModeSimple, rec.Mode)
}

func TestHealthStatuses(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]backend.HealthChecker
		wantStatus string
		wantCode   int
	}{
		{
			name:       "no backends registered",
			checks:     nil,
			wantStatus: "ok",
			wantCode:   http.StatusOK,
		},
		{
			name: "all healthy",
			checks: map[string]backend.HealthChecker{
				"web": &backend.Fake{}, "news": &backend.Fake{},
			},
			wantStatus: "ok",
			wantCode:   http.StatusOK,
		},
		{
			name: "one down",
			checks: map[string]backend.HealthChecker{
				"web": &backend.Fake{}, "news": &backend.Fake{Err: backend.ErrUnavailable},
			},
			wantStatus: "degraded",
			wantCode:   http.StatusOK,
		},
		{
			name: "all down",
			checks: map[string]backend.HealthChecker{
				"web": &backend.Fake{Err: backend.ErrUnavailable},
			},
			wantStatus: "down",
			wantCode:   http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, lane.Backends{Web: &backend.Fake{}})
			for name, hc := range tt.checks {
				env.server.SetHealthCheck(name, hc)
			}

			resp, err := http.Get(env.ts.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body struct {
				Status   string            `json:"status"`
				Backends map[string]string `json:"backends"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Len(t, body.Backends, len(tt.checks))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, lane.Backends{
		Web: &backend.Fake{Docs: []models.Document{capitalDoc()}},
	})

	// Run one query so the counters move.
	resp, err := http.Post(env.ts.URL+"/search", "application/json",
		strings.NewReader(`{"query":"capital of France","mode":"simple"}`))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "fathom_queries_total")
	assert.Contains(t, string(raw), `mode="simple"`)
}
