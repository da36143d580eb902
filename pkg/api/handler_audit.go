package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fathomsearch/fathom/pkg/audit"
)

// handleAudit returns the stored audit record for one trace id.
func (s *Server) handleAudit(c *gin.Context) {
	traceID := c.Param("trace_id")

	rec, err := s.sink.Get(c.Request.Context(), traceID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no audit record for trace id"})
			return
		}
		slog.Error("Audit lookup failed", "trace_id", traceID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
