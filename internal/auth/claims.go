package auth

import "github.com/golang-jwt/jwt/v5"

// RoleUser and RoleAdmin are the two roles the identity authority issues.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims is the identity claim set carried in access tokens issued by the
// identity authority. It is produced only by successful verification, is
// immutable, and lives for a single request.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	// TeamID is empty for users not yet assigned to a team (the token
	// carries null, which decodes to the empty string).
	TeamID string `json:"teamId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// EffectiveRole returns the token role, defaulting to "user" when absent.
func (c *Claims) EffectiveRole() string {
	if c.Role == "" {
		return RoleUser
	}
	return c.Role
}

// IsAdmin reports whether the claims carry the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
