package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
	"github.com/noah-isme/campus-net-api/pkg/response"
)

type paymentService interface {
	Import(ctx context.Context, req dto.ImportPaymentsRequest) (*dto.ImportSummary, error)
	ProcessPending(ctx context.Context) (*dto.ProcessResult, error)
	RetryFailed(ctx context.Context) (*dto.ProcessResult, error)
	List(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error)
}

// PaymentHandler exposes payment import and processing endpoints.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler builds a new handler.
func NewPaymentHandler(service paymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// Import stores a payment batch.
func (h *PaymentHandler) Import(c *gin.Context) {
	var req dto.ImportPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	summary, err := h.service.Import(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Process settles every pending payment.
func (h *PaymentHandler) Process(c *gin.Context) {
	result, err := h.service.ProcessPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Retry resets failed payments and settles them again.
func (h *PaymentHandler) Retry(c *gin.Context) {
	result, err := h.service.RetryFailed(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Pending returns the queue the next processing run will settle.
func (h *PaymentHandler) Pending(c *gin.Context) {
	payments, err := h.service.List(c.Request.Context(), models.PaymentStatusPending)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// List returns payments in one state, pending by default.
func (h *PaymentHandler) List(c *gin.Context) {
	status := models.PaymentStatus(strings.ToUpper(c.DefaultQuery("status", string(models.PaymentStatusPending))))
	switch status {
	case models.PaymentStatusPending, models.PaymentStatusProcessed, models.PaymentStatusFailed:
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status must be PENDING, PROCESSED or FAILED"))
		return
	}
	payments, err := h.service.List(c.Request.Context(), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}
