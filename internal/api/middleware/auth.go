package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/auth"
	"github.com/quillbooks/quillbooks/internal/models"
)

// Context keys set by the auth middleware.
const (
	// ContextUserID is the authenticated tenant user's ID.
	ContextUserID = "user_id"
	// ContextTenantID is the tenant the request is scoped to.
	ContextTenantID = "tenant_id"
	// ContextRole is the tenant user's role.
	ContextRole = "role"
	// ContextOperatorID is the authenticated operator's ID.
	ContextOperatorID = "operator_id"
	// ContextTokenID is the token's jti, used for revocation.
	ContextTokenID = "token_id"
)

// TenantIDHeader carries the tenant a request operates on. It must match the
// tenant binding inside the bearer token.
const TenantIDHeader = "X-Tenant-ID"

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// TenantAuth returns a middleware that authenticates tenant-scoped requests.
// The tenant in the X-Tenant-ID header must match the token's binding; a
// mismatch is rejected before any store is touched.
func TenantAuth(issuer *auth.TokenIssuer, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "tenant_auth").Logger()

	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Scope != auth.ScopeTenant {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "tenant token required"})
			return
		}

		headerTenant, err := uuid.Parse(c.GetHeader(TenantIDHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or malformed " + TenantIDHeader + " header"})
			return
		}
		if headerTenant != claims.TenantID {
			log.Warn().
				Str("header_tenant", headerTenant.String()).
				Str("token_tenant", claims.TenantID.String()).
				Msg("tenant header does not match token binding")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "tenant mismatch"})
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextTenantID, claims.TenantID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireAdmin restricts a route to tenant administrators. It must run after
// TenantAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := c.Get(ContextRole)
		if !ok || role.(models.UserRole) != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "administrator role required"})
			return
		}
		c.Next()
	}
}

// OperatorAuth returns a middleware that authenticates platform operators.
// Operator tokens are individually revocable; revoked tokens are rejected
// even before their expiry.
func OperatorAuth(issuer *auth.TokenIssuer, revoker *auth.Revoker, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "operator_auth").Logger()

	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Scope != auth.ScopeOperator {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator token required"})
			return
		}

		revoked, err := revoker.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			log.Error().Err(err).Msg("revocation check failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authorization unavailable"})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		operatorID, err := claims.UserID()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextOperatorID, operatorID)
		c.Set(ContextTokenID, claims.ID)
		c.Next()
	}
}
