package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qrattend/internal/model"
)

const claimsKey = "claims"

// RequireAuth enforces bearer access tokens. Browsers cannot set headers on
// a WebSocket upgrade, so the token may also arrive as ?access_token=.
func RequireAuth(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c.GetHeader("Authorization"))
		if tokenStr == "" {
			tokenStr = c.Query("access_token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole lets through callers holding one of roles. It must run after
// RequireAuth.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role " + string(id.Role) + " not allowed"})
	}
}

// IdentityFrom returns the caller set by RequireAuth.
func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return model.Identity{}, false
	}
	claims, ok := v.(Claims)
	if !ok {
		return model.Identity{}, false
	}
	return claims.Identity(), true
}

func bearer(header string) string {
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}
