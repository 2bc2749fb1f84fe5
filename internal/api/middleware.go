package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"push-relay-backend/internal/auth"
)

const tenantContextKey = "tenantContext"

// RequireAuth resolves the bearer API key to a TenantContext and attaches it
// to the request. All AuthError kinds terminate with 401; the kind is
// surfaced in the body so callers can tell an expired key from a revoked one.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ""
		header := c.GetHeader("Authorization")
		if header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				key = parts[1]
			}
		}

		tenant, err := h.authority.Authorize(c.Request.Context(), key)
		if err != nil {
			var authErr *auth.AuthError
			if errors.As(err, &authErr) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authErr.Kind})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization lookup failed"})
			return
		}

		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// tenantFrom returns the TenantContext attached by RequireAuth.
func tenantFrom(c *gin.Context) *auth.TenantContext {
	return c.MustGet(tenantContextKey).(*auth.TenantContext)
}
