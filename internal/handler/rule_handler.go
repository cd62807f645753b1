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

type ruleService interface {
	List(ctx context.Context) ([]models.AccountTypeRule, error)
	Resolve(ctx context.Context, accountType string) (models.AccountTypeRule, error)
	Upsert(ctx context.Context, req dto.UpsertRuleRequest) (*models.AccountTypeRule, error)
	Delete(ctx context.Context, accountType string) error
}

// RuleHandler exposes account-type rule endpoints.
type RuleHandler struct {
	service ruleService
}

// NewRuleHandler builds a new handler.
func NewRuleHandler(service ruleService) *RuleHandler {
	return &RuleHandler{service: service}
}

// List returns all stored rule overrides.
func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// Get returns the effective rule for one type, default policy included.
func (h *RuleHandler) Get(c *gin.Context) {
	rule, err := h.service.Resolve(c.Request.Context(), c.Param("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// Upsert creates or replaces a rule override.
func (h *RuleHandler) Upsert(c *gin.Context) {
	var req dto.UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rule payload"))
		return
	}
	rule, err := h.service.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// Delete removes a rule override.
func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("type")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
