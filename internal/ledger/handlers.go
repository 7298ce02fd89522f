package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for wallet balances and history.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new ledger handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up ledger routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/balance", h.GetBalance)
	r.GET("/users/:id/ledger", h.GetHistory)
}

// GetBalance handles GET /users/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Param("id")

	bal, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// An account with no movements is an empty wallet, not an error
			c.JSON(http.StatusOK, gin.H{
				"userId":    userID,
				"available": "0.00",
				"held":      "0.00",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to fetch balance",
		})
		return
	}

	c.JSON(http.StatusOK, bal)
}

// GetHistory handles GET /users/:id/ledger
func (h *Handler) GetHistory(c *gin.Context) {
	userID := c.Param("id")

	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	entries, err := h.ledger.GetHistory(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to fetch history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"entries": entries,
		"count":   len(entries),
	})
}
