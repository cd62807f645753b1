package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
)

type changeReaderStub struct {
	lastLimit int
	entries   []models.AccountChangeLog
}

func (s *changeReaderStub) ByOperation(context.Context, int64) ([]models.AccountChangeLog, error) {
	return s.entries, nil
}

func (s *changeReaderStub) ByStudent(_ context.Context, _ string, limit int) ([]models.AccountChangeLog, error) {
	s.lastLimit = limit
	return s.entries, nil
}

func (s *changeReaderStub) Range(_ context.Context, _, _ time.Time, limit int) ([]models.AccountChangeLog, error) {
	s.lastLimit = limit
	return s.entries, nil
}

func TestAuditServiceStudentChangesLimitClamp(t *testing.T) {
	reader := &changeReaderStub{entries: []models.AccountChangeLog{{AccountID: "ACC-1"}}}
	svc := NewAuditService(nil, reader, nil)

	entries, err := svc.StudentChanges(context.Background(), "S1", 9000)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 100, reader.lastLimit)
}

func TestAuditServiceChangesInWindowRejectsInvertedWindow(t *testing.T) {
	svc := NewAuditService(nil, &changeReaderStub{}, nil)

	from := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.ChangesInWindow(context.Background(), from, from.Add(-time.Hour), 10)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
