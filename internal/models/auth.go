package models

// Role names stored in the roles table.
const (
	RoleAdmin     = "admin"
	RoleTeacher   = "teacher"
	RoleCounselor = "counselor"
	RoleStudent   = "student"
)

// KnownRoles lists the roles seeded by the schema.
var KnownRoles = []string{RoleAdmin, RoleTeacher, RoleCounselor, RoleStudent}

// StaffRoles may read every profile and the trend reports.
var StaffRoles = []string{RoleAdmin, RoleTeacher, RoleCounselor}

// Claims describes the authenticated caller attached to a request.
type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}

// HasRole reports whether the caller holds role.
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// Session is the result of a password sign-in.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenType    string   `json:"token_type,omitempty"`
	ExpiresIn    int64    `json:"expires_in,omitempty"`
	User         UserInfo `json:"user"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
}
