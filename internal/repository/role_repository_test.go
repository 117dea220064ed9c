package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/models"
)

func TestRoleRepositoryRolesFor(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewRoleRepository(store)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admin").AddRow("teacher"))
	roles, err := repo.RolesFor(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "teacher"}, roles)

	mock.ExpectQuery("FROM user_roles").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	roles, err = repo.RolesFor(context.Background(), "u2")
	require.NoError(t, err)
	assert.NotNil(t, roles)
	assert.Empty(t, roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryAssignIsIdempotent(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewRoleRepository(store)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles (user_id, role_id) VALUES (") + ".*" + regexp.QuoteMeta("ON CONFLICT (user_id, role_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Assign(context.Background(), "u1", []models.Role{{ID: 4, Name: "student"}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryReplace(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewRoleRepository(store)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_roles WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles (user_id, role_id)")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), "u1", []models.Role{{ID: 2, Name: "teacher"}, {ID: 3, Name: "counselor"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryRolesForUsers(t *testing.T) {
	_, store, mock := newMockDB(t)
	repo := NewRoleRepository(store)

	mock.ExpectQuery("WHERE ur.user_id = ANY\\(\\$1\\)").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name"}).AddRow("u1", "admin").AddRow("u1", "teacher"))
	roles, err := repo.RolesForUsers(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "teacher"}, roles["u1"])
	assert.Empty(t, roles["u2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
