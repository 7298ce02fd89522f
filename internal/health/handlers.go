package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides the HTTP endpoint for user health scores.
type Handler struct {
	calc *Calculator
}

// NewHandler creates a new health handler.
func NewHandler(calc *Calculator) *Handler {
	return &Handler{calc: calc}
}

// RegisterRoutes sets up health routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/health", h.GetHealth)
}

// GetHealth handles GET /v1/users/:id/health
func (h *Handler) GetHealth(c *gin.Context) {
	score, err := h.calc.Compute(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"health": score})
}
