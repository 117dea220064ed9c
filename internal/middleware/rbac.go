package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/response"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Status  int
	Reason  string
}

// Authorize decides whether a caller holding roles may proceed. selfMatch admits a
// caller acting on their own resource regardless of roles. A caller without any
// role is forbidden, never unauthorized.
func Authorize(roles []string, required []string, selfMatch bool) Decision {
	if selfMatch {
		return Decision{Allowed: true, Status: http.StatusOK}
	}
	for _, want := range required {
		for _, have := range roles {
			if have == want {
				return Decision{Allowed: true, Status: http.StatusOK}
			}
		}
	}
	if len(roles) == 0 {
		return Decision{Status: http.StatusForbidden, Reason: "no roles assigned"}
	}
	return Decision{Status: http.StatusForbidden, Reason: "insufficient role"}
}

// RequireRoles admits callers holding at least one of roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return guard(roles, func(*gin.Context, *models.Claims) bool { return false })
}

// AdminOrSelf admits admins and callers whose id equals the named path parameter.
func AdminOrSelf(param string) gin.HandlerFunc {
	return guard([]string{models.RoleAdmin}, func(c *gin.Context, claims *models.Claims) bool {
		id := c.Param(param)
		return id != "" && id == claims.UserID
	})
}

func guard(required []string, self func(*gin.Context, *models.Claims) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		decision := Authorize(claims.Roles, required, self(c, claims))
		if !decision.Allowed {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, decision.Reason))
			c.Abort()
			return
		}
		c.Next()
	}
}
