package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fathomsearch/fathom/pkg/orchestrator"
)

// mapSubmitError maps admission errors to HTTP responses. Only called
// before the event stream opens.
func mapSubmitError(err error) (int, gin.H) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidQuery):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, orchestrator.ErrDuplicateTrace):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, orchestrator.ErrNoLanes):
		return http.StatusServiceUnavailable, gin.H{"error": err.Error()}
	default:
		slog.Error("Unexpected submit error", "error", err)
		return http.StatusInternalServerError, gin.H{"error": "internal server error"}
	}
}
