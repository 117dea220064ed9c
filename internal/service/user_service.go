package service

import (
	"context"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/identity"
)

// UserService administers provider accounts and their role assignments.
type UserService struct {
	provider  identity.Provider
	roles     roleStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(provider identity.Provider, roles roleStore, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{provider: provider, roles: roles, validator: validate, logger: logger}
}

// List returns provider accounts merged with their roles. Users without roles get an empty set.
func (s *UserService) List(ctx context.Context) ([]models.UserWithRoles, error) {
	users, err := s.provider.ListUsers(ctx)
	if err != nil {
		return nil, mapIdentityError(err, "failed to list users")
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assigned, err := s.roles.RolesForUsers(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}
	result := make([]models.UserWithRoles, 0, len(users))
	for _, u := range users {
		roles := assigned[u.ID]
		if roles == nil {
			roles = []string{}
		}
		result = append(result, models.UserWithRoles{
			IdentityUser: models.IdentityUser{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt, LastSignInAt: u.LastSignInAt},
			Roles:        roles,
		})
	}
	return result, nil
}

// GetRoles returns the role set of one user.
func (s *UserService) GetRoles(ctx context.Context, userID string) (*models.UserRoles, error) {
	roles, err := s.roles.RolesFor(ctx, userID)
	if err != nil {
		return nil, roleStoreError(err, "failed to load roles")
	}
	if roles == nil {
		roles = []string{}
	}
	return &models.UserRoles{UserID: userID, Roles: roles}, nil
}

// UpdateRoles replaces a user's roles. Every name must exist in the roles table.
func (s *UserService) UpdateRoles(ctx context.Context, userID string, req dto.UpdateRolesRequest) (*models.UserRoles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roles payload")
	}
	selected, err := s.resolveRoles(ctx, req.Roles)
	if err != nil {
		return nil, err
	}
	if err := s.roles.Replace(ctx, userID, selected); err != nil {
		return nil, roleStoreError(err, "failed to update roles")
	}
	names := make([]string, 0, len(selected))
	for _, role := range selected {
		names = append(names, role.Name)
	}
	s.logger.Info("user roles replaced", zap.String("user_id", userID), zap.Strings("roles", names))
	return &models.UserRoles{UserID: userID, Roles: names}, nil
}

// Create provisions an account through the provider and grants it one role.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest) (*models.UserWithRoles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	name := strings.TrimSpace(req.Role)
	if name == "" {
		name = models.RoleStudent
	}
	role, err := findRole(ctx, s.roles, name)
	if err != nil {
		return nil, err
	}
	user, err := s.provider.CreateUser(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return nil, mapIdentityError(err, "failed to create user")
	}
	if err := s.roles.Assign(ctx, user.ID, []models.Role{role}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign role")
	}
	return &models.UserWithRoles{
		IdentityUser: models.IdentityUser{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt},
		Roles:        []string{role.Name},
	}, nil
}

// Delete removes the provider account and its role rows.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := s.provider.DeleteUser(ctx, userID); err != nil {
		return mapIdentityError(err, "failed to delete user")
	}
	if err := s.roles.RemoveAll(ctx, userID); err != nil {
		return roleStoreError(err, "failed to remove roles")
	}
	return nil
}

func (s *UserService) resolveRoles(ctx context.Context, names []string) ([]models.Role, error) {
	all, err := s.roles.ListRoles(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}
	byName := make(map[string]models.Role, len(all))
	for _, role := range all {
		byName[role.Name] = role
	}
	seen := make(map[string]struct{}, len(names))
	selected := make([]models.Role, 0, len(names))
	var unknown []string
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		role, ok := byName[name]
		if !ok {
			unknown = append(unknown, raw)
			continue
		}
		selected = append(selected, role)
	}
	if len(unknown) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown roles: "+strings.Join(unknown, ", "))
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Name < selected[j].Name })
	return selected, nil
}

func roleStoreError(err error, message string) error {
	if isMalformedID(err) {
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
