package dto

// UpdateRolesRequest replaces a user's role set. An empty list revokes every role.
type UpdateRolesRequest struct {
	Roles []string `json:"roles" validate:"required,dive,required"`
}

// CreateUserRequest provisions an account and grants it one role.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role,omitempty"`
}
