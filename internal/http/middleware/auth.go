package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/Wynand91/fedauth/internal/token"
)

const (
	accessClaimsKey = "accessClaims"
	stdClaimsKey    = "stdClaims"
)

// Auth validates Authorization headers and attaches claims.
type Auth struct {
	Tokens *token.Generator
}

// ValidateJWT ensures the request carries a valid bearer access token.
func (m *Auth) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}
	std, custom, err := m.Tokens.ValidateAccess(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}
	c.Set(stdClaimsKey, std)
	c.Set(accessClaimsKey, custom)
	c.Next()
}

// RequireSuperuser gates the provider administration endpoints. It must run
// after ValidateJWT.
func (m *Auth) RequireSuperuser(c *gin.Context) {
	claims, ok := GetAccessClaims(c)
	if !ok || !claims.IsSuperuser {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Superuser required."})
		return
	}
	c.Next()
}

// GetAccessClaims exposes custom access token claims to handlers.
func GetAccessClaims(c *gin.Context) (*token.Claims, bool) {
	value, ok := c.Get(accessClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*token.Claims)
	return claims, ok
}

// GetStdClaims returns the standard JWT claims set.
func GetStdClaims(c *gin.Context) (*gojwt.Claims, bool) {
	value, ok := c.Get(stdClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*gojwt.Claims)
	return claims, ok
}
