package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginClaims are the claims of an access token issued for a granted login.
type LoginClaims struct {
	jwt.RegisteredClaims
	LoginID  string `json:"login_id"`
	Profile  string `json:"profile,omitempty"`
	Project  string `json:"project,omitempty"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// NewLoginClaims fills the login specific claims from a granted login.
// Registered claims are left to the token service.
func NewLoginClaims(login *Login) *LoginClaims {
	claims := &LoginClaims{
		LoginID: login.ID,
		Profile: login.Profile.String(),
		Project: login.Project.String(),
		Scope:   login.Scope,
	}
	claims.RegisteredClaims.Subject = login.Profile.ID()
	if login.Client != nil {
		claims.ClientID = login.Client.ID()
	}
	return claims
}

// ProfileReference returns the profile the token acts as.
func (c *LoginClaims) ProfileReference() *Reference {
	if c.Profile == "" {
		return nil
	}
	return &Reference{Reference: c.Profile}
}

// Expires returns the expiration time, or the zero time when unset.
func (c *LoginClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAtTime returns the issue time, or the zero time when unset.
func (c *LoginClaims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// HasScope reports whether the space separated scope grants scope.
func (c *LoginClaims) HasScope(scope string) bool {
	for _, granted := range strings.Fields(c.Scope) {
		if granted == scope {
			return true
		}
	}
	return false
}
