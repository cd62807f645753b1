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

type statsService interface {
	Pool(ctx context.Context) (*models.PoolStats, bool, error)
}

type statsMetrics interface {
	SetPoolGauges(counts []models.StatusCount)
}

type settingService interface {
	List(ctx context.Context) ([]models.Setting, error)
	Set(ctx context.Context, key, value string) error
}

// StatsHandler exposes pool statistics and persisted settings.
type StatsHandler struct {
	stats    statsService
	metrics  statsMetrics
	settings settingService
}

// NewStatsHandler builds a new handler.
func NewStatsHandler(stats statsService, metrics statsMetrics, settings settingService) *StatsHandler {
	return &StatsHandler{stats: stats, metrics: metrics, settings: settings}
}

// Pool returns the pool summary.
func (h *StatsHandler) Pool(c *gin.Context) {
	stats, cached, err := h.stats.Pool(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.SetPoolGauges(stats.ByStatus)
	}
	response.JSON(c, http.StatusOK, stats, map[string]interface{}{"cached": cached})
}

// Settings lists the persisted settings.
func (h *StatsHandler) Settings(c *gin.Context) {
	settings, err := h.settings.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// UpdateSetting replaces one setting value.
func (h *StatsHandler) UpdateSetting(c *gin.Context) {
	var req dto.UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid setting payload"))
		return
	}
	if err := h.settings.Set(c.Request.Context(), c.Param("key"), req.Value); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"key": c.Param("key"), "value": req.Value}, nil)
}
