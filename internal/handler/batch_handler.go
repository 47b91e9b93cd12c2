package handler

import (
	"github.com/gin-gonic/gin"

	"ddtcorpus/internal/service"
)

// BatchHandler handles batch extraction run endpoints.
type BatchHandler struct {
	batchService service.BatchService
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batchService service.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

// Start handles POST /api/v1/batch
func (h *BatchHandler) Start(c *gin.Context) {
	summary, err := h.batchService.Start(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondAccepted(c, summary)
}

// Status handles GET /api/v1/batch
func (h *BatchHandler) Status(c *gin.Context) {
	summary, ok := h.batchService.Status()
	if !ok {
		RespondOK(c, gin.H{"in_progress": false, "message": "no batch run yet"})
		return
	}
	RespondOK(c, summary)
}

// Cancel handles DELETE /api/v1/batch
func (h *BatchHandler) Cancel(c *gin.Context) {
	h.batchService.Cancel()
	RespondOK(c, gin.H{"message": "cancellation requested; in-flight documents will finish"})
}
