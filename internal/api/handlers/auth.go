package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/api/middleware"
	"github.com/quillbooks/quillbooks/internal/auth"
	"github.com/quillbooks/quillbooks/internal/models"
)

// UserStore defines the persistence operations login needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error)
	GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetOperatorByEmail(ctx context.Context, email string) (uuid.UUID, string, error)
}

// AuthHandler handles authentication endpoints for both token scopes.
type AuthHandler struct {
	store   UserStore
	issuer  *auth.TokenIssuer
	revoker *auth.Revoker
	logger  zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store UserStore, issuer *auth.TokenIssuer, revoker *auth.Revoker, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		store:   store,
		issuer:  issuer,
		revoker: revoker,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterRoutes registers unauthenticated auth routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.Login)
	r.POST("/operator/login", h.OperatorLogin)
}

// RegisterOperatorRoutes registers routes that require an operator token.
func (h *AuthHandler) RegisterOperatorRoutes(r *gin.RouterGroup) {
	r.POST("/logout", h.OperatorLogout)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	UserID    uuid.UUID       `json:"user_id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	Role      models.UserRole `json:"role"`
}

// Login authenticates a tenant user and issues a tenant-scoped token. The
// tenant is named by the X-Tenant-ID header, same as every other request.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	tenantID, err := uuid.Parse(c.GetHeader(middleware.TenantIDHeader))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or malformed " + middleware.TenantIDHeader + " header"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	email := auth.NormalizeEmail(req.Email)
	user, err := h.store.GetUserByEmail(c.Request.Context(), tenantID, email)
	if err != nil {
		// Same response for unknown user and bad password.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.issuer.IssueTenantToken(user)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue tenant token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.logger.Info().
		Str("tenant_id", user.TenantID.String()).
		Str("user_id", user.ID.String()).
		Msg("tenant user logged in")

	c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(h.issuer.TenantTokenTTL()),
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Role:      user.Role,
	})
}

type operatorLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// OperatorLogin authenticates a platform operator and issues an operator token.
// POST /api/v1/auth/operator/login
func (h *AuthHandler) OperatorLogin(c *gin.Context) {
	var req operatorLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, hash, err := h.store.GetOperatorByEmail(c.Request.Context(), auth.NormalizeEmail(req.Email))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := auth.CheckPassword(hash, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.issuer.IssueOperatorToken(id)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue operator token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.logger.Info().Str("operator_id", id.String()).Msg("operator logged in")
	c.JSON(http.StatusOK, gin.H{"token": token, "operator_id": id})
}

// OperatorLogout revokes the presented operator token.
// POST /api/v1/operator/logout
func (h *AuthHandler) OperatorLogout(c *gin.Context) {
	jti := c.GetString(middleware.ContextTokenID)
	if jti == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no token to revoke"})
		return
	}

	if err := h.revoker.Revoke(c.Request.Context(), jti); err != nil {
		h.logger.Error().Err(err).Msg("failed to revoke operator token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
