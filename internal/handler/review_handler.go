package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/service"
)

// ReviewHandler handles the manual validation queue endpoints.
type ReviewHandler struct {
	reviewService service.ReviewService
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviewService service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// Queue handles GET /api/v1/review
func (h *ReviewHandler) Queue(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	docs, total, err := h.reviewService.Queue(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, docs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

type validateRequest struct {
	ValidatedData json.RawMessage `json:"validated_data" binding:"required"`
	Source        string          `json:"source"`
	Notes         string          `json:"notes"`
}

// Validate handles POST /api/v1/review/:id/validate
func (h *ReviewHandler) Validate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "validated_data is required")
		return
	}

	doc, err := h.reviewService.Validate(c.Request.Context(), &service.ValidateDocumentInput{
		DocumentID:    id,
		ValidatedData: req.ValidatedData,
		Source:        domain.ValidationSource(req.Source),
		Notes:         req.Notes,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, doc)
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

// Reject handles POST /api/v1/review/:id/reject
func (h *ReviewHandler) Reject(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req rejectRequest
	_ = c.ShouldBindJSON(&req)

	doc, err := h.reviewService.Reject(c.Request.Context(), id, req.Notes)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, doc)
}
