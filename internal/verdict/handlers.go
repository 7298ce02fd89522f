package verdict

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for reading verdicts.
type Handler struct {
	store Store
}

// NewHandler creates a new verdict handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up verdict routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/verdicts/:id", h.GetVerdict)
	r.GET("/users/:id/verdicts", h.ListByActor)
}

// GetVerdict handles GET /v1/verdicts/:id
func (h *Handler) GetVerdict(c *gin.Context) {
	v, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrVerdictNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No verdict with this ID",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verdict": v})
}

// ListByActor handles GET /v1/users/:id/verdicts
func (h *Handler) ListByActor(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	verdicts, err := h.store.ListByActor(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	if verdicts == nil {
		verdicts = []*Verdict{}
	}
	c.JSON(http.StatusOK, gin.H{"verdicts": verdicts, "count": len(verdicts)})
}
