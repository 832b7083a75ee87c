package middleware

import (
	"strings"

	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
)

const IdentityKey = "identity"

func Auth(jwtService *services.JWTService) drift.HandlerFunc {
	return func(c *drift.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Unauthorized("missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.Unauthorized("invalid authorization header format")
			return
		}

		claims, err := jwtService.ValidateAccessToken(parts[1])
		if err != nil {
			c.Unauthorized("invalid or expired token")
			return
		}

		c.Set(IdentityKey, claims.Identity())

		c.Next()
	}
}

// GetIdentity returns the caller identity stored by Auth, or the zero
// identity on unauthenticated routes.
func GetIdentity(c *drift.Context) models.Identity {
	if v, ok := c.Get(IdentityKey); ok {
		if identity, ok := v.(models.Identity); ok {
			return identity
		}
	}
	return models.Identity{}
}
