package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rust borrow checker", req.Query)
		assert.Equal(t, 10, req.K)

		json.NewEncoder(w).Encode(searchResponse{Documents: []searchDocument{
			{URL: "https://doc.rust-lang.org/book", Title: "The Book", Content: "Ownership rules.", Score: 0.9},
			{URL: "https://example.com/post", Title: "A post", Snippet: "borrowing"},
		}})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "")
	docs, err := p.Search(context.Background(), "rust borrow checker", SearchOptions{K: 10})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "The Book", docs[0].Title)
	assert.Equal(t, 0.9, docs[0].Score)
}

func TestHTTPProviderSendsBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "sekret")
	_, err := p.Search(context.Background(), "q", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sekret", got)
}

func TestHTTPProviderStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuthFailed},
		{"forbidden", http.StatusForbidden, ErrAuthFailed},
		{"throttled", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewHTTPProvider(srv.URL, "")
			_, err := p.Search(context.Background(), "q", SearchOptions{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPProviderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listening anymore

	p := NewHTTPProvider(srv.URL, "")
	_, err := p.Search(context.Background(), "q", SearchOptions{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPProviderHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "")
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestOpenAIEmbedderReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		// Respond out of order; the client must restore input order.
		w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1]},
			{"index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL+"/v1", "", "text-embedding-3-small")
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "", "m")
	_, err := e.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
