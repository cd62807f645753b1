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

type maintenanceService interface {
	RunSweep(ctx context.Context) (dto.SweepSummary, error)
	DuplicateBindings(ctx context.Context) ([]models.DuplicateBinding, error)
	Rebind(ctx context.Context, req dto.RebindRequest) (*dto.RebindResult, error)
}

type integrityService interface {
	FixIntegrity(ctx context.Context) (*models.IntegrityFixCounts, error)
}

// MaintenanceHandler exposes the sweep, duplicate review and repair endpoints.
type MaintenanceHandler struct {
	service   maintenanceService
	integrity integrityService
}

// NewMaintenanceHandler builds a new handler.
func NewMaintenanceHandler(service maintenanceService, integrity integrityService) *MaintenanceHandler {
	return &MaintenanceHandler{service: service, integrity: integrity}
}

// Sweep runs the five-step reconciliation on demand.
func (h *MaintenanceHandler) Sweep(c *gin.Context) {
	summary, err := h.service.RunSweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Duplicates lists accounts referenced by more than one roster entry.
func (h *MaintenanceHandler) Duplicates(c *gin.Context) {
	groups, err := h.service.DuplicateBindings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Rebind moves one student of a duplicate group onto a fresh account.
func (h *MaintenanceHandler) Rebind(c *gin.Context) {
	var req dto.RebindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rebind payload"))
		return
	}
	result, err := h.service.Rebind(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// FixIntegrity repairs structural drift between pool and roster.
func (h *MaintenanceHandler) FixIntegrity(c *gin.Context) {
	counts, err := h.integrity.FixIntegrity(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counts, nil)
}
