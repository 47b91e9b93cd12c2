package handler

import (
	"github.com/gin-gonic/gin"

	"ddtcorpus/internal/service"
)

// StatsHandler handles the processing stats endpoint.
type StatsHandler struct {
	docService service.DocumentService
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(docService service.DocumentService) *StatsHandler {
	return &StatsHandler{docService: docService}
}

// Get handles GET /api/v1/stats
func (h *StatsHandler) Get(c *gin.Context) {
	stats, counts, err := h.docService.Stats(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{
		"stats":            stats,
		"status_counts":    counts,
		"progress_percent": stats.ProgressPercent(),
	})
}
