package handler

import (
	"github.com/gin-gonic/gin"

	"ddtcorpus/internal/service"
)

// ExportHandler handles dataset export endpoints.
type ExportHandler struct {
	exportService service.ExportService
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exportService service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// Export handles POST /api/v1/export
func (h *ExportHandler) Export(c *gin.Context) {
	result, err := h.exportService.Export(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, result)
}
