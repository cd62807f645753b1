package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
	"github.com/noah-isme/campus-net-api/pkg/response"
)

type accountService interface {
	Get(ctx context.Context, id string) (*models.AccountDetail, error)
	Search(ctx context.Context, filter models.AccountFilter) ([]models.AccountDetail, error)
	Available(ctx context.Context, limit int) ([]models.Account, error)
	History(ctx context.Context, accountID string, limit int) ([]models.AccountChangeLog, error)
	SearchStudents(ctx context.Context, keyword string, limit int) ([]models.StudentEntry, error)
	ImportAccounts(ctx context.Context, req dto.ImportAccountsRequest) (*dto.ImportSummary, error)
	ImportStudents(ctx context.Context, req dto.ImportStudentsRequest) (*dto.ImportSummary, error)
	RecalculateLifecycle(ctx context.Context, req dto.RecalculateRequest) (int, error)
}

// AccountHandler exposes pool query and import endpoints.
type AccountHandler struct {
	service accountService
}

// NewAccountHandler builds a new handler.
func NewAccountHandler(service accountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// List returns accounts matching the query filter.
func (h *AccountHandler) List(c *gin.Context) {
	filter := models.AccountFilter{
		Status:      models.AccountStatus(c.Query("status")),
		AccountType: c.Query("type"),
		StudentID:   c.Query("studentId"),
	}
	accounts, err := h.service.Search(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accounts, nil)
}

// Get returns one account with its bound student's name.
func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// Available returns the bindable free pool in allocation order.
func (h *AccountHandler) Available(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	accounts, err := h.service.Available(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accounts, nil)
}

// History returns an account's change trail.
func (h *AccountHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.service.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Import merges an account batch into the pool.
func (h *AccountHandler) Import(c *gin.Context) {
	var req dto.ImportAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}
	summary, err := h.service.ImportAccounts(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ImportStudents merges a roster batch.
func (h *AccountHandler) ImportStudents(c *gin.Context) {
	var req dto.ImportStudentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid roster payload"))
		return
	}
	summary, err := h.service.ImportStudents(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// SearchStudents looks up roster entries by id or name fragment.
func (h *AccountHandler) SearchStudents(c *gin.Context) {
	keyword := c.Query("q")
	if keyword == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "query parameter q is required"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.service.SearchStudents(c.Request.Context(), keyword, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Recalculate reapplies the lifecycle window for one account type.
func (h *AccountHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid recalculate payload"))
		return
	}
	changed, err := h.service.RecalculateLifecycle(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"changed": changed}, nil)
}
