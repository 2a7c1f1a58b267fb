package handlers

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/auth"
	"github.com/quillbooks/quillbooks/internal/events"
	"github.com/quillbooks/quillbooks/internal/license"
	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// TenantStore defines the persistence operations tenant administration needs.
type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	SetTenantSuspended(ctx context.Context, id uuid.UUID, suspended bool) error
	CreateUser(ctx context.Context, user *models.User) error
	IssueLicense(ctx context.Context, lic *models.License) error
	ListLicenses(ctx context.Context, tenantID uuid.UUID) ([]*models.License, error)
	SetLicenseStatus(ctx context.Context, licenseID uuid.UUID, status models.LicenseStatus) error
}

// TenantHandler serves the operator surface: tenant lifecycle, suspension,
// and license management.
type TenantHandler struct {
	store      TenantStore
	gate       *license.Gate
	hub        *events.Hub
	trialDays  int
	licensePub ed25519.PublicKey
	logger     zerolog.Logger
}

// NewTenantHandler creates a new TenantHandler. The public key may be nil,
// in which case signed license keys are not accepted.
func NewTenantHandler(store TenantStore, gate *license.Gate, hub *events.Hub, trialDays int, licensePub ed25519.PublicKey, logger zerolog.Logger) *TenantHandler {
	return &TenantHandler{
		store:      store,
		gate:       gate,
		hub:        hub,
		trialDays:  trialDays,
		licensePub: licensePub,
		logger:     logger.With().Str("component", "tenant_handler").Logger(),
	}
}

// RegisterRoutes registers tenant administration routes on an
// operator-authenticated group.
func (h *TenantHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.Create)
	r.GET("/tenants", h.List)
	r.GET("/tenants/:id", h.Get)
	r.POST("/tenants/:id/suspend", h.Suspend)
	r.POST("/tenants/:id/activate", h.Activate)
	r.POST("/tenants/:id/licenses", h.IssueLicense)
	r.GET("/tenants/:id/licenses", h.ListLicenses)
	r.DELETE("/tenants/:id/licenses/:license_id", h.RevokeLicense)
	r.GET("/tenants/:id/gate", h.GateState)
}

type createTenantRequest struct {
	Name          string `json:"name" binding:"required"`
	AdminEmail    string `json:"admin_email" binding:"required"`
	AdminPassword string `json:"admin_password" binding:"required"`
}

// Create provisions a tenant with a fresh trial window and its first admin.
// POST /api/v1/operator/tenants
func (h *TenantHandler) Create(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	name := auth.NormalizeOrgName(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant name must not be empty"})
		return
	}

	hash, err := auth.HashPassword(req.AdminPassword)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID:         uuid.New(),
		Name:       name,
		TrialStart: now,
		TrialEnd:   now.Add(time.Duration(h.trialDays) * 24 * time.Hour),
	}
	if err := h.store.CreateTenant(c.Request.Context(), tenant); err != nil {
		respondError(c, err)
		return
	}

	admin := &models.User{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		Email:        auth.NormalizeEmail(req.AdminEmail),
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := h.store.CreateUser(c.Request.Context(), admin); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("name", tenant.Name).
		Time("trial_end", tenant.TrialEnd).
		Msg("tenant created")

	c.JSON(http.StatusCreated, gin.H{"tenant": tenant, "admin_user_id": admin.ID})
}

// List returns all tenants.
// GET /api/v1/operator/tenants
func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.store.ListTenants(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants})
}

// Get returns one tenant.
// GET /api/v1/operator/tenants/:id
func (h *TenantHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed tenant id"})
		return
	}
	tenant, err := h.store.GetTenantByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": tenant})
}

// Suspend blocks all writes for a tenant. Suspension is an overlay: lifting
// it restores whatever state the license history implies.
// POST /api/v1/operator/tenants/:id/suspend
func (h *TenantHandler) Suspend(c *gin.Context) {
	h.setSuspended(c, true)
}

// Activate lifts a suspension.
// POST /api/v1/operator/tenants/:id/activate
func (h *TenantHandler) Activate(c *gin.Context) {
	h.setSuspended(c, false)
}

func (h *TenantHandler) setSuspended(c *gin.Context, suspended bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed tenant id"})
		return
	}
	if err := h.store.SetTenantSuspended(c.Request.Context(), id, suspended); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info().Str("tenant_id", id.String()).Bool("suspended", suspended).Msg("tenant suspension changed")
	if h.hub != nil {
		h.hub.Publish(&events.Event{Type: events.EventLicenseChanged, TenantID: id})
	}
	c.JSON(http.StatusOK, gin.H{"suspended": suspended})
}

type issueLicenseRequest struct {
	// Key is a signed license key. When set, the other fields are ignored.
	Key string `json:"key,omitempty"`

	Type      models.LicenseType `json:"type,omitempty"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

// IssueLicense activates a license for a tenant, superseding any active one.
// Accepts either a signed license key or explicit grant fields.
// POST /api/v1/operator/tenants/:id/licenses
func (h *TenantHandler) IssueLicense(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed tenant id"})
		return
	}

	var req issueLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var lic *models.License
	switch {
	case req.Key != "":
		if h.licensePub == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "signed license keys are not configured"})
			return
		}
		lic, err = license.ParseKey(req.Key, h.licensePub)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if lic.TenantID != tenantID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "license key is for a different tenant"})
			return
		}
	default:
		if !req.Type.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown license type"})
			return
		}
		if req.Type != models.LicensePerpetual && req.ExpiresAt == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "non-perpetual license requires expires_at"})
			return
		}
		lic = &models.License{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Type:      req.Type,
			ExpiresAt: req.ExpiresAt,
		}
	}

	if err := h.store.IssueLicense(c.Request.Context(), lic); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("license_id", lic.ID.String()).
		Str("type", string(lic.Type)).
		Msg("license issued")
	if h.hub != nil {
		h.hub.Publish(&events.Event{Type: events.EventLicenseChanged, TenantID: tenantID})
	}
	c.JSON(http.StatusCreated, gin.H{"license": lic})
}

// ListLicenses returns a tenant's license history.
// GET /api/v1/operator/tenants/:id/licenses
func (h *TenantHandler) ListLicenses(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed tenant id"})
		return
	}
	licenses, err := h.store.ListLicenses(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"licenses": licenses})
}

// RevokeLicense transitions a license to revoked. The tenant keeps read
// access and may acquire a new license afterward.
// DELETE /api/v1/operator/tenants/:id/licenses/:license_id
func (h *TenantHandler) RevokeLicense(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed tenant id"})
		return
	}
	licenseID, err := uuid.Parse(c.Param("license_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed license id"})
		return
	}

	if err := h.store.SetLicenseStatus(c.Request.Context(), licenseID, models.LicenseRevoked); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("license_id", licenseID.String()).
		Msg("license revoked")
	if h.hub != nil {
		h.hub.Publish(&events.Event{Type: events.EventLicenseChanged, TenantID: tenantID})
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// GateState reports the access decision the gate would make for a tenant
// right now. Useful for support diagnostics.
// GET /api/v1/operator/tenants/:id/gate
func (h *TenantHandler) GateState(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed tenant id"})
		return
	}

	decision, err := h.gate.Evaluate(c.Request.Context(), tenantID, time.Now().UTC())
	if err != nil {
		if qerrors.Is(err, qerrors.KindNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}
