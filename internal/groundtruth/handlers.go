package groundtruth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helixpay/payguard/internal/verdict"
)

// Handler provides HTTP endpoints for ground-truth labeling and reporting.
type Handler struct {
	service *Service
}

// NewHandler creates a new ground-truth handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public reporting routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/groundtruth/report", h.GetReport)
}

// RegisterAdminRoutes sets up admin-only labeling routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/verdicts/:id/verify", h.Verify)
	r.POST("/verdicts/:id/revoke-label", h.Revoke)
	r.GET("/groundtruth/export", h.ExportCSV)
}

type verifyRequest struct {
	Label      string `json:"label" binding:"required"`
	ReviewerID string `json:"reviewer_id" binding:"required"`
}

// Verify handles POST /v1/admin/verdicts/:id/verify
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "label and reviewer_id are required",
		})
		return
	}

	a, err := h.service.Verify(c.Request.Context(), c.Param("id"), verdict.Label(req.Label), req.ReviewerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"annotation": a})
}

type revokeRequest struct {
	Label      string `json:"label" binding:"required"`
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

// Revoke handles POST /v1/admin/verdicts/:id/revoke-label
func (h *Handler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "label, reviewer_id and reason are required",
		})
		return
	}

	a, err := h.service.Revoke(c.Request.Context(), c.Param("id"), verdict.Label(req.Label), req.ReviewerID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"annotation": a})
}

// GetReport handles GET /v1/groundtruth/report
func (h *Handler) GetReport(c *gin.Context) {
	report, err := h.service.Report(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// ExportCSV handles GET /v1/admin/groundtruth/export
func (h *Handler) ExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="groundtruth.csv"`)
	if err := h.service.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, verdict.ErrVerdictNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No verdict with this ID",
		})
	case errors.Is(err, verdict.ErrAlreadyLabeled):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_labeled",
			"message": "This verdict already has a ground-truth label",
		})
	case errors.Is(err, verdict.ErrNotLabeled):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "not_labeled",
			"message": "This verdict has no label to revoke",
		})
	case errors.Is(err, ErrInvalidLabel), errors.Is(err, ErrSameLabel):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
