package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-net-api/internal/models"
)

// RuleRepository stores per-type lifecycle and binding policy overrides.
type RuleRepository struct {
	db *sqlx.DB
}

func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `account_type, allow_binding, lifecycle_months, fixed_start, fixed_end, updated_at`

// Get returns the rule for one account type, or nil when no override exists.
func (r *RuleRepository) Get(ctx context.Context, accountType string) (*models.AccountTypeRule, error) {
	query := fmt.Sprintf("SELECT %s FROM account_type_rules WHERE account_type = $1", ruleColumns)
	var rule models.AccountTypeRule
	if err := r.db.GetContext(ctx, &rule, query, accountType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &rule, nil
}

// List returns all configured rules.
func (r *RuleRepository) List(ctx context.Context) ([]models.AccountTypeRule, error) {
	query := fmt.Sprintf("SELECT %s FROM account_type_rules ORDER BY account_type", ruleColumns)
	var rules []models.AccountTypeRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// Upsert writes a rule override.
func (r *RuleRepository) Upsert(ctx context.Context, rule *models.AccountTypeRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO account_type_rules
	(account_type, allow_binding, lifecycle_months, fixed_start, fixed_end, updated_at)
	VALUES (:account_type, :allow_binding, :lifecycle_months, :fixed_start, :fixed_end, :updated_at)
	ON CONFLICT (account_type) DO UPDATE SET
	    allow_binding = EXCLUDED.allow_binding,
	    lifecycle_months = EXCLUDED.lifecycle_months,
	    fixed_start = EXCLUDED.fixed_start,
	    fixed_end = EXCLUDED.fixed_end,
	    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, rule); err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

// Delete removes a rule override. Returns sql.ErrNoRows when absent.
func (r *RuleRepository) Delete(ctx context.Context, accountType string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM account_type_rules WHERE account_type = $1", accountType)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
