package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
)

func newTestAuthService() (*AuthService, *fakeProvider, *fakeRoleStore) {
	provider := newFakeProvider()
	roles := newFakeRoleStore()
	return NewAuthService(provider, roles, nil, nil, ""), provider, roles
}

func TestSignUpThenSignInYieldsStudentRole(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()

	user, err := svc.SignUp(ctx, dto.SignUpRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, []string{models.RoleStudent}, user.Roles)

	session, err := svc.SignIn(ctx, dto.SignInRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, user.ID, session.User.ID)
	assert.Equal(t, []string{models.RoleStudent}, session.User.Roles)

	claims, err := svc.ResolveToken(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.True(t, claims.HasRole(models.RoleStudent))
}

func TestSignUpDuplicateIsConflict(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()
	_, err := svc.SignUp(ctx, dto.SignUpRequest{Email: "dup@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, dto.SignUpRequest{Email: "dup@example.com", Password: "secret123"})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrAuth.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
}

func TestSignUpValidatesPayload(t *testing.T) {
	svc, _, _ := newTestAuthService()
	_, err := svc.SignUp(context.Background(), dto.SignUpRequest{Email: "not-an-email", Password: "secret123"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSignInWrongPassword(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()
	_, err := svc.SignUp(ctx, dto.SignUpRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, dto.SignInRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestResolveTokenRejectsUnknownToken(t *testing.T) {
	svc, _, _ := newTestAuthService()
	_, err := svc.ResolveToken(context.Background(), "garbage")
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestRolesForUnassignedUserIsEmpty(t *testing.T) {
	svc, _, _ := newTestAuthService()
	roles, err := svc.RolesFor(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, roles)
	assert.Empty(t, roles)
}

func TestRolesForStoreFailureIsInternal(t *testing.T) {
	svc, _, roles := newTestAuthService()
	roles.err = errors.New("db down")
	_, err := svc.RolesFor(context.Background(), "u1")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
