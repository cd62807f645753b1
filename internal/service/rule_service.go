package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-net-api/internal/dto"
	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
)

type ruleStore interface {
	Get(ctx context.Context, accountType string) (*models.AccountTypeRule, error)
	List(ctx context.Context) ([]models.AccountTypeRule, error)
	Upsert(ctx context.Context, rule *models.AccountTypeRule) error
	Delete(ctx context.Context, accountType string) error
}

// RuleService resolves per-type binding policy and lifecycle windows.
type RuleService struct {
	rules  ruleStore
	logger *zap.Logger
}

// NewRuleService constructs the rule service.
func NewRuleService(rules ruleStore, logger *zap.Logger) *RuleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleService{rules: rules, logger: logger}
}

// Resolve returns the effective rule for a type. Missing overrides resolve to
// the default policy, never an error.
func (s *RuleService) Resolve(ctx context.Context, accountType string) (models.AccountTypeRule, error) {
	rule, err := s.rules.Get(ctx, accountType)
	if err != nil {
		return models.AccountTypeRule{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account type rule")
	}
	if rule == nil {
		return models.DefaultRule(accountType), nil
	}
	return *rule, nil
}

// ComputeLifecycle derives an account's lifecycle window from its effective
// rule. Precedence: fixed dates, then a month count from the start, then the
// cohort window encoded in the type label, then the caller's defaults. A
// non-positive month count closes the window on its start date.
func ComputeLifecycle(rule models.AccountTypeRule, defaultStart, defaultEnd *time.Time) (start, end *time.Time) {
	start, end = ParseTypeWindow(rule.AccountType)
	if start == nil {
		start = defaultStart
	}
	if end == nil {
		end = defaultEnd
	}
	if rule.FixedStart != nil {
		start = rule.FixedStart
	}
	if rule.FixedEnd == nil && rule.LifecycleMonths != nil && start != nil {
		months := *rule.LifecycleMonths
		if months < 0 {
			months = 0
		}
		e := start.AddDate(0, months, 0)
		end = &e
	}
	if rule.FixedEnd != nil {
		end = rule.FixedEnd
	}
	return start, end
}

// List returns all stored rule overrides.
func (s *RuleService) List(ctx context.Context) ([]models.AccountTypeRule, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list account type rules")
	}
	return rules, nil
}

// Upsert validates and stores a rule override.
func (s *RuleService) Upsert(ctx context.Context, req dto.UpsertRuleRequest) (*models.AccountTypeRule, error) {
	rule := models.AccountTypeRule{
		AccountType:  req.AccountType,
		AllowBinding: true,
	}
	if req.AllowBinding != nil {
		rule.AllowBinding = *req.AllowBinding
	}
	// months <= 0 is a legal degenerate rule: the window closes on its
	// start date, so the whole cohort parks outside the free pool.
	rule.LifecycleMonths = req.LifecycleMonths
	if req.FixedStart != "" {
		start, err := time.ParseInLocation(models.DateOnly, req.FixedStart, time.Local)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "fixedStart must use YYYY-MM-DD")
		}
		rule.FixedStart = &start
	}
	if req.FixedEnd != "" {
		end, err := time.ParseInLocation(models.DateOnly, req.FixedEnd, time.Local)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "fixedEnd must use YYYY-MM-DD")
		}
		rule.FixedEnd = &end
	}
	if rule.FixedStart != nil && rule.FixedEnd != nil && rule.FixedEnd.Before(*rule.FixedStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fixedEnd must not precede fixedStart")
	}

	if err := s.rules.Upsert(ctx, &rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store account type rule")
	}
	s.logger.Info("account type rule stored",
		zap.String("accountType", rule.AccountType),
		zap.Bool("allowBinding", rule.AllowBinding))
	return &rule, nil
}

// Delete removes a rule override.
func (s *RuleService) Delete(ctx context.Context, accountType string) error {
	if err := s.rules.Delete(ctx, accountType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account type rule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete account type rule")
	}
	return nil
}
