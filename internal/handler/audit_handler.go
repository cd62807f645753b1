package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
	"github.com/noah-isme/campus-net-api/pkg/response"
)

type auditService interface {
	Operations(ctx context.Context, operationType string, limit int) ([]models.OperationLog, error)
	OperationChanges(ctx context.Context, operationID int64) ([]models.AccountChangeLog, error)
	StudentChanges(ctx context.Context, studentID string, limit int) ([]models.AccountChangeLog, error)
	ChangesInWindow(ctx context.Context, from, to time.Time, limit int) ([]models.AccountChangeLog, error)
}

// AuditHandler exposes the read side of the audit trail.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler builds a new handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// Operations lists recent operation batches.
func (h *AuditHandler) Operations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.service.Operations(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// OperationChanges returns every account change one batch produced.
func (h *AuditHandler) OperationChanges(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "operation id must be numeric"))
		return
	}
	entries, err := h.service.OperationChanges(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// StudentChanges returns one student's change trail.
func (h *AuditHandler) StudentChanges(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.service.StudentChanges(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Changes lists the trail inside a from/to window (RFC 3339 or date-only).
func (h *AuditHandler) Changes(c *gin.Context) {
	from, err := parseInstant(c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC 3339 or YYYY-MM-DD"))
		return
	}
	to, err := parseInstant(c.Query("to"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC 3339 or YYYY-MM-DD"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	entries, err := h.service.ChangesInWindow(c.Request.Context(), from, to, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

func parseInstant(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation(models.DateOnly, value, time.Local)
}
