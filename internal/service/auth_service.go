package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/identity"
)

type roleStore interface {
	RolesFor(ctx context.Context, userID string) ([]string, error)
	RolesForUsers(ctx context.Context, userIDs []string) (map[string][]string, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	Assign(ctx context.Context, userID string, roles []models.Role) error
	Replace(ctx context.Context, userID string, roles []models.Role) error
	RemoveAll(ctx context.Context, userID string) error
}

// AuthService fronts the identity provider and resolves role membership.
type AuthService struct {
	provider    identity.Provider
	roles       roleStore
	validator   *validator.Validate
	logger      *zap.Logger
	defaultRole string
}

// NewAuthService constructs an AuthService instance. New accounts receive defaultRole
// (student when empty).
func NewAuthService(provider identity.Provider, roles roleStore, validate *validator.Validate, logger *zap.Logger, defaultRole string) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if defaultRole == "" {
		defaultRole = models.RoleStudent
	}
	return &AuthService{provider: provider, roles: roles, validator: validate, logger: logger, defaultRole: defaultRole}
}

// SignUp registers an account and grants it the default role.
func (s *AuthService) SignUp(ctx context.Context, req dto.SignUpRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign-up payload")
	}
	user, err := s.provider.SignUp(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return nil, mapIdentityError(err, "sign-up failed")
	}
	role, err := findRole(ctx, s.roles, s.defaultRole)
	if err != nil {
		return nil, err
	}
	if err := s.roles.Assign(ctx, user.ID, []models.Role{role}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign default role")
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID), zap.String("role", role.Name))
	return &models.UserInfo{ID: user.ID, Email: user.Email, Roles: []string{role.Name}}, nil
}

// SignIn exchanges credentials for a session carrying the caller's roles.
func (s *AuthService) SignIn(ctx context.Context, req dto.SignInRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign-in payload")
	}
	session, err := s.provider.SignIn(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return nil, mapIdentityError(err, "sign-in failed")
	}
	roles, err := s.RolesFor(ctx, session.User.ID)
	if err != nil {
		return nil, err
	}
	return &models.Session{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
		User:         models.UserInfo{ID: session.User.ID, Email: session.User.Email, Roles: roles},
	}, nil
}

// ResolveToken verifies a bearer token and loads the caller's roles.
func (s *AuthService) ResolveToken(ctx context.Context, token string) (*models.Claims, error) {
	user, err := s.provider.VerifyToken(ctx, token)
	if err != nil {
		return nil, mapIdentityError(err, "token verification failed")
	}
	roles, err := s.RolesFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.Claims{UserID: user.ID, Email: user.Email, Roles: roles}, nil
}

// RolesFor returns the role names assigned to a user; an un-roled user has none.
func (s *AuthService) RolesFor(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.roles.RolesFor(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}

func findRole(ctx context.Context, roles roleStore, name string) (models.Role, error) {
	all, err := roles.ListRoles(ctx)
	if err != nil {
		return models.Role{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}
	for _, role := range all {
		if role.Name == name {
			return role, nil
		}
	}
	return models.Role{}, appErrors.Clone(appErrors.ErrValidation, "unknown role: "+name)
}

func mapIdentityError(err error, message string) error {
	switch {
	case errors.Is(err, identity.ErrUserExists):
		return appErrors.Wrap(err, appErrors.ErrAuth.Code, http.StatusConflict, "email already registered")
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrRejected):
		return appErrors.Wrap(err, appErrors.ErrAuth.Code, appErrors.ErrAuth.Status, message)
	case errors.Is(err, identity.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, identity.ErrInvalidToken):
		return appErrors.ErrInvalidToken
	case errors.Is(err, identity.ErrUserNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, message)
	}
}
