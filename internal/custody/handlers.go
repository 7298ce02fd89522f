package custody

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for custody operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new custody handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) custody routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/transfers/:id", h.GetTransfer)
	r.GET("/transfers/held", h.ListHeld)
}

// RegisterAdminRoutes sets up admin-only custody routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/transfers/:id/release", h.Release)
	r.POST("/transfers/:id/return", h.Return)
	r.POST("/transfers/:id/confiscate", h.Confiscate)
}

// GetTransfer handles GET /v1/transfers/:id
func (h *Handler) GetTransfer(c *gin.Context) {
	t, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No transfer with this ID",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": t})
}

// ListHeld handles GET /v1/transfers/held
func (h *Handler) ListHeld(c *gin.Context) {
	held, err := h.service.ListHeld(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	if held == nil {
		held = []*Transfer{}
	}
	c.JSON(http.StatusOK, gin.H{"transfers": held, "count": len(held)})
}

// Release handles POST /v1/admin/transfers/:id/release
func (h *Handler) Release(c *gin.Context) {
	h.resolve(c, h.service.Release)
}

// Return handles POST /v1/admin/transfers/:id/return
func (h *Handler) Return(c *gin.Context) {
	h.resolve(c, h.service.Return)
}

// Confiscate handles POST /v1/admin/transfers/:id/confiscate
func (h *Handler) Confiscate(c *gin.Context) {
	h.resolve(c, h.service.Confiscate)
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
}

func (h *Handler) resolve(c *gin.Context, fn func(ctx context.Context, transferID, settledBy string) (*Transfer, error)) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "resolved_by is required",
		})
		return
	}

	t, err := fn(c.Request.Context(), c.Param("id"), req.ResolvedBy)
	if err != nil {
		switch {
		case errors.Is(err, ErrTransferNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No transfer with this ID",
			})
		case errors.Is(err, ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_transition",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": t})
}
