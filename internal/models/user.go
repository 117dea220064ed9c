package models

import "time"

// IdentityUser is an account held by the identity provider.
type IdentityUser struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// UserWithRoles joins a provider account with its role assignments.
type UserWithRoles struct {
	IdentityUser
	Roles []string `json:"roles"`
}

// UserRoles is the role set of one user.
type UserRoles struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// Role is a row of the roles table.
type Role struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
