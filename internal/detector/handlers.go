package detector

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helixpay/payguard/internal/validation"
)

// Handler provides the HTTP endpoint that runs a fraud check.
type Handler struct {
	service *Service
}

// NewHandler creates a new detector handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the transaction check route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions", h.CheckTransaction)
}

// CheckTransaction handles POST /v1/transactions. The body is a
// CheckRequest; the response carries the verdict, including the safe
// degraded one when detection itself failed.
func (h *Handler) CheckTransaction(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be valid JSON",
		})
		return
	}
	if req.SourceIP == "" {
		req.SourceIP = c.ClientIP()
	}
	if errs := validation.Validate(
		validation.Required("actor_id", req.ActorID),
		validation.ValidUserID("actor_id", req.ActorID),
		validation.Required("amount", req.Amount),
		validation.ValidAmount("amount", req.Amount),
		validation.ValidIP("source_ip", req.SourceIP),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	v, err := h.service.AnalyzeFraudRisk(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, ErrUnknownActor), errors.Is(err, ErrUnknownCounterparty):
			status = http.StatusNotFound
		case errors.Is(err, ErrInsufficientBalance):
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"error":   "rejected",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"verdict": v})
}
