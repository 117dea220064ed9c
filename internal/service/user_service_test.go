package service

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/identity"
)

func TestUserListMergesRolesWithoutDefaulting(t *testing.T) {
	provider := newFakeProvider()
	roles := newFakeRoleStore()
	provider.users["u1"] = identity.User{ID: "u1", Email: "admin@example.com"}
	provider.users["u2"] = identity.User{ID: "u2", Email: "new@example.com"}
	roles.assigned["u1"] = []string{models.RoleAdmin}

	svc := NewUserService(provider, roles, nil, nil)
	users, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	byID := map[string][]string{}
	for _, u := range users {
		byID[u.ID] = u.Roles
	}
	assert.Equal(t, []string{models.RoleAdmin}, byID["u1"])
	assert.Equal(t, []string{}, byID["u2"])
}

func TestUpdateRolesRejectsUnknownRole(t *testing.T) {
	roles := newFakeRoleStore()
	roles.assigned["u1"] = []string{models.RoleStudent}
	svc := NewUserService(newFakeProvider(), roles, nil, nil)

	_, err := svc.UpdateRoles(context.Background(), "u1", dto.UpdateRolesRequest{Roles: []string{"teacher", "wizard"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, []string{models.RoleStudent}, roles.assigned["u1"])
}

func TestUpdateRolesReplacesSet(t *testing.T) {
	roles := newFakeRoleStore()
	roles.assigned["u1"] = []string{models.RoleStudent}
	svc := NewUserService(newFakeProvider(), roles, nil, nil)

	result, err := svc.UpdateRoles(context.Background(), "u1", dto.UpdateRolesRequest{Roles: []string{"Teacher", "counselor", "teacher"}})
	require.NoError(t, err)
	assert.Equal(t, []string{models.RoleCounselor, models.RoleTeacher}, result.Roles)
	assert.Equal(t, []string{models.RoleCounselor, models.RoleTeacher}, roles.assigned["u1"])

	result, err = svc.UpdateRoles(context.Background(), "u1", dto.UpdateRolesRequest{Roles: []string{}})
	require.NoError(t, err)
	assert.Empty(t, result.Roles)
}

func TestCreateUserDefaultsToStudent(t *testing.T) {
	roles := newFakeRoleStore()
	svc := NewUserService(newFakeProvider(), roles, nil, nil)

	user, err := svc.Create(context.Background(), dto.CreateUserRequest{Email: "kid@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, []string{models.RoleStudent}, user.Roles)
	assert.Equal(t, []string{models.RoleStudent}, roles.assigned[user.ID])

	_, err = svc.Create(context.Background(), dto.CreateUserRequest{Email: "x@example.com", Password: "secret123", Role: "janitor"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDeleteUserRemovesRoles(t *testing.T) {
	provider := newFakeProvider()
	roles := newFakeRoleStore()
	provider.users["u1"] = identity.User{ID: "u1", Email: "a@example.com"}
	roles.assigned["u1"] = []string{models.RoleTeacher}
	svc := NewUserService(provider, roles, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "u1"))
	_, ok := roles.assigned["u1"]
	assert.False(t, ok)

	err := svc.Delete(context.Background(), "u1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRoleRoutesTreatMalformedIDAsNotFound(t *testing.T) {
	roles := newFakeRoleStore()
	roles.err = &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"}
	svc := NewUserService(newFakeProvider(), roles, nil, nil)

	_, err := svc.GetRoles(context.Background(), "abc")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = svc.UpdateRoles(context.Background(), "abc", dto.UpdateRolesRequest{Roles: []string{models.RoleTeacher}})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
