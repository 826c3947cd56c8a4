package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/domain/auth"
)

const claimsKey = "auth_claims"

// Auth validates the bearer token and stores the verified claims for the
// tenant and context middleware. Revocation is checked inside Verify; a
// blacklist outage fails the request rather than admitting a possibly
// revoked token.
func Auth(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(apperror.NewUnauthorized("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			_ = c.Error(apperror.NewUnauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := tokens.Verify(c.Request.Context(), parts[1])
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewUnauthorized("invalid token"))
			}
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the verified claims set by Auth, or nil on public
// routes.
func ClaimsFrom(c *gin.Context) *auth.Claims {
	if v, exists := c.Get(claimsKey); exists {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
