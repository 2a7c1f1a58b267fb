package license

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

type fakeGateStore struct {
	tenant  *models.Tenant
	license *models.License
}

func (f *fakeGateStore) GetTenantByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	if f.tenant == nil || f.tenant.ID != id {
		return nil, qerrors.New(qerrors.KindNotFound, "tenant not found")
	}
	return f.tenant, nil
}

func (f *fakeGateStore) GetActiveLicense(_ context.Context, tenantID uuid.UUID) (*models.License, error) {
	if f.license == nil || f.license.TenantID != tenantID {
		return nil, qerrors.New(qerrors.KindNotFound, "no active license")
	}
	return f.license, nil
}

func testTenant(trialEnd time.Time) *models.Tenant {
	now := time.Now().UTC()
	return &models.Tenant{
		ID:         uuid.New(),
		Name:       "Test Co",
		TrialStart: now.Add(-24 * time.Hour),
		TrialEnd:   trialEnd,
	}
}

func TestGateTrialActive(t *testing.T) {
	now := time.Now().UTC()
	tenant := testTenant(now.Add(time.Hour))
	gate := NewGate(&fakeGateStore{tenant: tenant}, zerolog.Nop())

	d, err := gate.Evaluate(context.Background(), tenant.ID, now)
	require.NoError(t, err)
	assert.Equal(t, StateTrial, d.State)
	assert.True(t, d.Allowed)
}

func TestGateTrialExpired(t *testing.T) {
	now := time.Now().UTC()
	tenant := testTenant(now.Add(-time.Hour))
	gate := NewGate(&fakeGateStore{tenant: tenant}, zerolog.Nop())

	d, err := gate.Evaluate(context.Background(), tenant.ID, now)
	require.NoError(t, err)
	assert.Equal(t, StateTrialExpired, d.State)
	assert.False(t, d.Allowed)
}

func TestGateLicensed(t *testing.T) {
	now := time.Now().UTC()
	tenant := testTenant(now.Add(-time.Hour)) // trial over, license takes over
	exp := now.Add(30 * 24 * time.Hour)
	lic := &models.License{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		Type:      models.LicenseTimeBound,
		Status:    models.LicenseActive,
		ExpiresAt: &exp,
	}
	gate := NewGate(&fakeGateStore{tenant: tenant, license: lic}, zerolog.Nop())

	d, err := gate.Evaluate(context.Background(), tenant.ID, now)
	require.NoError(t, err)
	assert.Equal(t, StateLicensed, d.State)
	assert.True(t, d.Allowed)
}

func TestGatePerpetualLicenseNeverExpires(t *testing.T) {
	now := time.Now().UTC()
	tenant := testTenant(now.Add(-time.Hour))
	lic := &models.License{
		ID:       uuid.New(),
		TenantID: tenant.ID,
		Type:     models.LicensePerpetual,
		Status:   models.LicenseActive,
	}
	gate := NewGate(&fakeGateStore{tenant: tenant, license: lic}, zerolog.Nop())

	d, err := gate.Evaluate(context.Background(), tenant.ID, now.Add(100*365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StateLicensed, d.State)
	assert.True(t, d.Allowed)
}

func TestGateLicenseExpired(t *testing.T) {
	now := time.Now().UTC()
	tenant := testTenant(now.Add(-48 * time.Hour))
	exp := now.Add(-time.Hour)
	lic := &models.License{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		Type:      models.LicenseTimeBound,
		Status:    models.LicenseActive,
		ExpiresAt: &exp,
	}
	gate := NewGate(&fakeGateStore{tenant: tenant, license: lic}, zerolog.Nop())

	d, err := gate.Evaluate(context.Background(), tenant.ID, now)
	require.NoError(t, err)
	assert.Equal(t, StateLicenseExpired, d.State)
	assert.False(t, d.Allowed)
}

func TestGateSuspensionOverridesLicense(t *testing.T) {
	now := time.Now().UTC()
	tenant := testTenant(now.Add(time.Hour))
	tenant.Suspended = true
	lic := &models.License{
		ID:       uuid.New(),
		TenantID: tenant.ID,
		Type:     models.LicensePerpetual,
		Status:   models.LicenseActive,
	}
	store := &fakeGateStore{tenant: tenant, license: lic}
	gate := NewGate(store, zerolog.Nop())

	d, err := gate.Evaluate(context.Background(), tenant.ID, now)
	require.NoError(t, err)
	assert.Equal(t, StateSuspended, d.State)
	assert.False(t, d.Allowed)

	// Lifting the suspension restores the licensed state.
	tenant.Suspended = false
	d, err = gate.Evaluate(context.Background(), tenant.ID, now)
	require.NoError(t, err)
	assert.Equal(t, StateLicensed, d.State)
	assert.True(t, d.Allowed)
}

func TestCheckAccessDenialIsLicenseError(t *testing.T) {
	now := time.Now().UTC()
	tenant := testTenant(now.Add(-time.Hour))
	gate := NewGate(&fakeGateStore{tenant: tenant}, zerolog.Nop())

	d, err := gate.CheckAccess(context.Background(), tenant.ID, now)
	require.Error(t, err)
	assert.True(t, qerrors.Is(err, qerrors.KindLicense))
	assert.Equal(t, StateTrialExpired, d.State)
}

func TestGateUnknownTenant(t *testing.T) {
	gate := NewGate(&fakeGateStore{}, zerolog.Nop())

	_, err := gate.Evaluate(context.Background(), uuid.New(), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, qerrors.Is(err, qerrors.KindNotFound))
}
