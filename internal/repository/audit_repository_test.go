package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/models"
)

func TestAuditRepositoryCreateFillsIdentity(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewAuditRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs (")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{Action: models.AuditActionStudentDelete, Resource: "student"}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCreateWrapsFailure(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewAuditRepository(store)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("disk full"))

	err := repo.Create(context.Background(), &models.AuditLog{ID: "a1", Action: models.AuditActionRolesUpdate, Resource: "user"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create audit log")
}
