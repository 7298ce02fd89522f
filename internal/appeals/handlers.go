package appeals

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helixpay/payguard/internal/validation"
	"github.com/helixpay/payguard/internal/verdict"
)

// Handler provides HTTP endpoints for the appeal lifecycle.
type Handler struct {
	service *Service
}

// NewHandler creates a new appeals handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up user-facing appeal routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/appeals", h.Submit)
	r.GET("/appeals/:id", h.GetAppeal)
	r.GET("/users/:id/appeals", h.ListByActor)
}

// RegisterAdminRoutes sets up admin-only appeal routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/appeals/pending", h.ListPending)
	r.POST("/appeals/:id/approve", h.Approve)
	r.POST("/appeals/:id/reject", h.Reject)
}

type submitRequest struct {
	VerdictID string `json:"verdict_id" binding:"required"`
	ActorID   string `json:"actor_id" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// Submit handles POST /v1/appeals
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "verdict_id, actor_id and reason are required",
		})
		return
	}
	if errs := validation.Validate(
		validation.ValidUserID("actor_id", req.ActorID),
		validation.MaxLength("reason", req.Reason, validation.MaxReasonLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	a, err := h.service.Submit(c.Request.Context(), req.VerdictID, req.ActorID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"appeal": a})
}

// GetAppeal handles GET /v1/appeals/:id
func (h *Handler) GetAppeal(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appeal": a})
}

// ListByActor handles GET /v1/users/:id/appeals
func (h *Handler) ListByActor(c *gin.Context) {
	list, err := h.service.ListByActor(c.Request.Context(), c.Param("id"), 50)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []*Appeal{}
	}
	c.JSON(http.StatusOK, gin.H{"appeals": list, "count": len(list)})
}

// ListPending handles GET /v1/admin/appeals/pending
func (h *Handler) ListPending(c *gin.Context) {
	list, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []*Appeal{}
	}
	c.JSON(http.StatusOK, gin.H{"appeals": list, "count": len(list)})
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
}

// Approve handles POST /v1/admin/appeals/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	h.resolveAppeal(c, h.service.Approve)
}

// Reject handles POST /v1/admin/appeals/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	h.resolveAppeal(c, h.service.Reject)
}

func (h *Handler) resolveAppeal(c *gin.Context, fn func(ctx context.Context, appealID, resolvedBy string) (*Appeal, error)) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "resolved_by is required",
		})
		return
	}

	a, err := fn(c.Request.Context(), c.Param("id"), req.ResolvedBy)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appeal": a})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAppealNotFound), errors.Is(err, verdict.ErrVerdictNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, ErrNotMarkedFraud), errors.Is(err, ErrNotActorsVerdict):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "not_appealable",
			"message": err.Error(),
		})
	case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrAlreadyApproved):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
