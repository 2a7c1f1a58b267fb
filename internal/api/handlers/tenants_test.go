package handlers

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/auth"
	"github.com/quillbooks/quillbooks/internal/license"
	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

type fakeTenantStore struct {
	tenants   map[uuid.UUID]*models.Tenant
	users     []*models.User
	licenses  []*models.License
	suspended map[uuid.UUID]bool
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{
		tenants:   make(map[uuid.UUID]*models.Tenant),
		suspended: make(map[uuid.UUID]bool),
	}
}

func (f *fakeTenantStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	f.tenants[tenant.ID] = tenant
	return nil
}

func (f *fakeTenantStore) GetTenantByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, qerrors.New(qerrors.KindNotFound, "tenant not found")
	}
	return t, nil
}

func (f *fakeTenantStore) ListTenants(context.Context) ([]*models.Tenant, error) {
	out := make([]*models.Tenant, 0, len(f.tenants))
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTenantStore) SetTenantSuspended(_ context.Context, id uuid.UUID, suspended bool) error {
	t, ok := f.tenants[id]
	if !ok {
		return qerrors.New(qerrors.KindNotFound, "tenant not found")
	}
	t.Suspended = suspended
	f.suspended[id] = suspended
	return nil
}

func (f *fakeTenantStore) CreateUser(_ context.Context, user *models.User) error {
	f.users = append(f.users, user)
	return nil
}

func (f *fakeTenantStore) IssueLicense(_ context.Context, lic *models.License) error {
	f.licenses = append(f.licenses, lic)
	return nil
}

func (f *fakeTenantStore) ListLicenses(_ context.Context, tenantID uuid.UUID) ([]*models.License, error) {
	var out []*models.License
	for _, l := range f.licenses {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeTenantStore) SetLicenseStatus(_ context.Context, licenseID uuid.UUID, status models.LicenseStatus) error {
	for _, l := range f.licenses {
		if l.ID == licenseID {
			l.Status = status
			return nil
		}
	}
	return qerrors.New(qerrors.KindNotFound, "license not found")
}

func newTenantRouter(t *testing.T, store *fakeTenantStore, pub ed25519.PublicKey) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gate := license.NewGate(&fakeLicenseStore{}, zerolog.Nop())
	h := NewTenantHandler(store, gate, nil, 30, pub, zerolog.Nop())

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1/operator"))
	return r
}

func TestCreateTenantNormalizesNameAndOpensTrial(t *testing.T) {
	store := newFakeTenantStore()
	r := newTenantRouter(t, store, nil)

	w := postJSON(r, "/api/v1/operator/tenants", map[string]string{
		"name":           "  Acme   Ledgers  ",
		"admin_email":    "Admin@Acme.COM",
		"admin_password": "strong enough",
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.tenants, 1)
	for _, tenant := range store.tenants {
		assert.Equal(t, "Acme Ledgers", tenant.Name)
		assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), tenant.TrialEnd, time.Minute)
	}
	require.Len(t, store.users, 1)
	assert.Equal(t, "admin@acme.com", store.users[0].Email)
	assert.Equal(t, models.RoleAdmin, store.users[0].Role)
	assert.NotEqual(t, "strong enough", store.users[0].PasswordHash)
}

func TestCreateTenantRejectsShortPassword(t *testing.T) {
	store := newFakeTenantStore()
	r := newTenantRouter(t, store, nil)

	w := postJSON(r, "/api/v1/operator/tenants", map[string]string{
		"name":           "Acme",
		"admin_email":    "a@b.com",
		"admin_password": "short",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.tenants)
}

func TestSuspendAndActivate(t *testing.T) {
	store := newFakeTenantStore()
	tenant := &models.Tenant{ID: uuid.New(), Name: "Acme"}
	store.tenants[tenant.ID] = tenant
	r := newTenantRouter(t, store, nil)

	w := postJSON(r, "/api/v1/operator/tenants/"+tenant.ID.String()+"/suspend", gin.H{}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, tenant.Suspended)

	w = postJSON(r, "/api/v1/operator/tenants/"+tenant.ID.String()+"/activate", gin.H{}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, tenant.Suspended)
}

func TestIssueLicenseExplicitGrant(t *testing.T) {
	store := newFakeTenantStore()
	tenantID := uuid.New()
	store.tenants[tenantID] = &models.Tenant{ID: tenantID}
	r := newTenantRouter(t, store, nil)

	exp := time.Now().UTC().Add(365 * 24 * time.Hour)
	w := postJSON(r, "/api/v1/operator/tenants/"+tenantID.String()+"/licenses", map[string]any{
		"type":       models.LicenseTimeBound,
		"expires_at": exp,
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.licenses, 1)
	assert.Equal(t, tenantID, store.licenses[0].TenantID)
	assert.Equal(t, models.LicenseTimeBound, store.licenses[0].Type)
}

func TestIssueLicenseRequiresExpiryForTimeBound(t *testing.T) {
	store := newFakeTenantStore()
	tenantID := uuid.New()
	r := newTenantRouter(t, store, nil)

	w := postJSON(r, "/api/v1/operator/tenants/"+tenantID.String()+"/licenses", map[string]any{
		"type": models.LicenseTimeBound,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.licenses)
}

func TestIssueLicenseFromSignedKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	store := newFakeTenantStore()
	tenantID := uuid.New()
	r := newTenantRouter(t, store, pub)

	exp := time.Now().UTC().Add(90 * 24 * time.Hour)
	key, err := license.GenerateKey(priv, tenantID, models.LicenseTimeBound, &exp)
	require.NoError(t, err)

	w := postJSON(r, "/api/v1/operator/tenants/"+tenantID.String()+"/licenses",
		map[string]string{"key": key}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.licenses, 1)
	assert.Equal(t, models.LicenseActive, store.licenses[0].Status)

	// A key bound to another tenant is refused.
	otherKey, err := license.GenerateKey(priv, uuid.New(), models.LicenseTimeBound, &exp)
	require.NoError(t, err)
	w = postJSON(r, "/api/v1/operator/tenants/"+tenantID.String()+"/licenses",
		map[string]string{"key": otherKey}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "different tenant")
}

func TestRevokeLicense(t *testing.T) {
	store := newFakeTenantStore()
	tenantID := uuid.New()
	lic := &models.License{ID: uuid.New(), TenantID: tenantID, Type: models.LicensePerpetual, Status: models.LicenseActive}
	store.licenses = append(store.licenses, lic)
	r := newTenantRouter(t, store, nil)

	req := httptest.NewRequest(http.MethodDelete,
		"/api/v1/operator/tenants/"+tenantID.String()+"/licenses/"+lic.ID.String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LicenseRevoked, lic.Status)
}

func TestGateStateUnknownTenant(t *testing.T) {
	r := newTenantRouter(t, newFakeTenantStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/operator/tenants/"+uuid.NewString()+"/gate", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Password hashes must verify with the same primitives login uses.
func TestCreatedAdminCanAuthenticate(t *testing.T) {
	store := newFakeTenantStore()
	r := newTenantRouter(t, store, nil)

	w := postJSON(r, "/api/v1/operator/tenants", map[string]string{
		"name":           "Acme",
		"admin_email":    "a@b.com",
		"admin_password": "strong enough",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.users, 1)
	assert.NoError(t, auth.CheckPassword(store.users[0].PasswordHash, "strong enough"))

	var resp struct {
		Tenant models.Tenant `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, store.users[0].TenantID, resp.Tenant.ID)
}
