package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/datastore"
)

// RoleRepository reads and assigns user roles.
type RoleRepository struct {
	store *datastore.Store
}

// NewRoleRepository constructs a RoleRepository.
func NewRoleRepository(store *datastore.Store) *RoleRepository {
	return &RoleRepository{store: store}
}

type userRoleRow struct {
	UserID string `db:"user_id"`
	RoleID int    `db:"role_id"`
}

// RolesFor returns the role names held by a user. No rows yields an empty slice.
func (r *RoleRepository) RolesFor(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = $1 ORDER BY r.name`
	roles := make([]string, 0)
	if err := sqlx.SelectContext(ctx, r.store.Ext(), &roles, query, userID); err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	return roles, nil
}

// RolesForUsers returns role names keyed by user id for many users at once.
func (r *RoleRepository) RolesForUsers(ctx context.Context, userIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	const query = `SELECT ur.user_id, r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = ANY($1) ORDER BY ur.user_id, r.name`
	var rows []struct {
		UserID string `db:"user_id"`
		Name   string `db:"name"`
	}
	if err := sqlx.SelectContext(ctx, r.store.Ext(), &rows, query, pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("roles for users: %w", err)
	}
	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row.Name)
	}
	return out, nil
}

// ListRoles returns every defined role.
func (r *RoleRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles := make([]models.Role, 0)
	if err := r.store.Select(ctx, &roles, "roles", datastore.Query{OrderBy: []string{"id"}}); err != nil {
		return nil, err
	}
	return roles, nil
}

// Assign grants roles without touching existing grants. Already held roles are ignored.
func (r *RoleRepository) Assign(ctx context.Context, userID string, roles []models.Role) error {
	rows := make([]userRoleRow, len(roles))
	for i, role := range roles {
		rows[i] = userRoleRow{UserID: userID, RoleID: role.ID}
	}
	return r.store.Upsert(ctx, "user_roles", rows, "user_id", "role_id")
}

// Replace swaps the user's roles for the given set in one transaction.
func (r *RoleRepository) Replace(ctx context.Context, userID string, roles []models.Role) error {
	return r.store.WithTx(ctx, func(tx *datastore.Store) error {
		if _, err := tx.Delete(ctx, "user_roles", datastore.Eq("user_id", userID)); err != nil {
			return err
		}
		rows := make([]userRoleRow, len(roles))
		for i, role := range roles {
			rows[i] = userRoleRow{UserID: userID, RoleID: role.ID}
		}
		return tx.Insert(ctx, "user_roles", rows)
	})
}

// RemoveAll deletes every role row of a user.
func (r *RoleRepository) RemoveAll(ctx context.Context, userID string) error {
	_, err := r.store.Delete(ctx, "user_roles", datastore.Eq("user_id", userID))
	return err
}
