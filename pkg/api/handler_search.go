package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fathomsearch/fathom/pkg/models"
)

// searchRequest is the POST /search body. Mode is optional; the
// classifier picks one when it is absent.
type searchRequest struct {
	Query       string             `json:"query" binding:"required"`
	Mode        string             `json:"mode"`
	TraceID     string             `json:"trace_id"`
	Constraints models.Constraints `json:"constraints"`
	Attachments []string           `json:"attachments"`
}

// handleSearch submits the query and streams its events as SSE. Admission
// failures are reported as JSON before the stream opens; once streaming
// starts, failures arrive as error events followed by the final event.
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = c.GetHeader("X-Trace-ID")
	}

	query := models.Query{
		Text:        req.Query,
		Mode:        models.Mode(req.Mode),
		TraceID:     traceID,
		Constraints: req.Constraints,
	}

	// The request context backs the query: a client disconnect cancels
	// every lane within the grace window.
	events, err := s.orch.Submit(c.Request.Context(), query, req.Attachments)
	if err != nil {
		status, body := mapSubmitError(err)
		c.JSON(status, body)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for ev := range events.Events() {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Event, data)
		c.Writer.Flush()
	}
}
