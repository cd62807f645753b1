package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
)

type operationLogReader interface {
	Recent(ctx context.Context, operationType string, limit int) ([]models.OperationLog, error)
}

type operationChangeReader interface {
	ByOperation(ctx context.Context, operationID int64) ([]models.AccountChangeLog, error)
	ByStudent(ctx context.Context, studentID string, limit int) ([]models.AccountChangeLog, error)
	Range(ctx context.Context, from, to time.Time, limit int) ([]models.AccountChangeLog, error)
}

// AuditService exposes the read side of the audit trail.
type AuditService struct {
	operations operationLogReader
	changes    operationChangeReader
	logger     *zap.Logger
}

// NewAuditService constructs the audit reader.
func NewAuditService(operations operationLogReader, changes operationChangeReader, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{operations: operations, changes: changes, logger: logger}
}

// Operations lists recent operation batches, optionally filtered by type.
func (s *AuditService) Operations(ctx context.Context, operationType string, limit int) ([]models.OperationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	logs, err := s.operations.Recent(ctx, operationType, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list operations")
	}
	return logs, nil
}

// OperationChanges returns every account change one batch produced.
func (s *AuditService) OperationChanges(ctx context.Context, operationID int64) ([]models.AccountChangeLog, error) {
	entries, err := s.changes.ByOperation(ctx, operationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list operation changes")
	}
	return entries, nil
}

// StudentChanges returns one student's trail across every account they held.
func (s *AuditService) StudentChanges(ctx context.Context, studentID string, limit int) ([]models.AccountChangeLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.changes.ByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student changes")
	}
	return entries, nil
}

// ChangesInWindow lists changes between two instants, oldest first.
func (s *AuditService) ChangesInWindow(ctx context.Context, from, to time.Time, limit int) ([]models.AccountChangeLog, error) {
	if !to.After(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	entries, err := s.changes.Range(ctx, from, to, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list changes")
	}
	return entries, nil
}
