package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
	"github.com/noah-isme/campus-net-api/pkg/response"
)

type bindingService interface {
	Bind(ctx context.Context, req dto.BindRequest) error
	Release(ctx context.Context, accountID string, req dto.ReleaseRequest) error
}

type bindingMetrics interface {
	RecordEngineOperation(operation string, err error)
}

// BindingHandler exposes the manual bind and release endpoints.
type BindingHandler struct {
	service bindingService
	metrics bindingMetrics
}

// NewBindingHandler builds a new handler.
func NewBindingHandler(service bindingService, metrics bindingMetrics) *BindingHandler {
	return &BindingHandler{service: service, metrics: metrics}
}

// Bind attaches one free account to a student.
func (h *BindingHandler) Bind(c *gin.Context) {
	var req dto.BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bind payload"))
		return
	}
	err := h.service.Bind(c.Request.Context(), req)
	if h.metrics != nil {
		h.metrics.RecordEngineOperation(models.OperationManualBind, err)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"accountId": req.AccountID, "studentId": req.StudentID}, nil)
}

// Release detaches an account and returns it to the pool.
func (h *BindingHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid release payload"))
		return
	}
	accountID := c.Param("accountId")
	err := h.service.Release(c.Request.Context(), accountID, req)
	if h.metrics != nil {
		h.metrics.RecordEngineOperation(models.OperationManualRelease, err)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"accountId": accountID}, nil)
}
