package license

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// AccessState is the gate's classification of a tenant at evaluation time.
type AccessState string

const (
	// StateTrial means the tenant is inside its trial window with no license.
	StateTrial AccessState = "trial"
	// StateLicensed means an active license is in force.
	StateLicensed AccessState = "licensed"
	// StateTrialExpired means the trial lapsed and no license was acquired.
	StateTrialExpired AccessState = "trial_expired"
	// StateLicenseExpired means the most recent license has lapsed.
	StateLicenseExpired AccessState = "license_expired"
	// StateSuspended overlays any other state and always denies writes.
	StateSuspended AccessState = "suspended"
)

// Decision is the outcome of one gate evaluation.
type Decision struct {
	State     AccessState `json:"state"`
	Allowed   bool        `json:"allowed"`
	Reason    string      `json:"reason,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Store is the persistence surface the gate reads from.
type Store interface {
	GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetActiveLicense(ctx context.Context, tenantID uuid.UUID) (*models.License, error)
}

// Gate evaluates whether a tenant may write data. All time comparisons use
// the server clock supplied by the caller; client clocks are never trusted.
type Gate struct {
	store  Store
	logger zerolog.Logger
}

// NewGate creates a gate over the given store.
func NewGate(store Store, logger zerolog.Logger) *Gate {
	return &Gate{
		store:  store,
		logger: logger.With().Str("component", "license-gate").Logger(),
	}
}

// Evaluate classifies a tenant's access at the given instant. Suspension is
// checked before anything else; it is a reversible overlay, so lifting it
// restores whatever state the license history implies.
func (g *Gate) Evaluate(ctx context.Context, tenantID uuid.UUID, now time.Time) (*Decision, error) {
	tenant, err := g.store.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}

	d := &Decision{CheckedAt: now}

	if tenant.Suspended {
		d.State = StateSuspended
		d.Reason = "tenant is suspended"
		return d, nil
	}

	lic, err := g.store.GetActiveLicense(ctx, tenantID)
	switch {
	case err == nil:
		if lic.ExpiredAt(now) {
			d.State = StateLicenseExpired
			d.Reason = "license expired " + lic.ExpiresAt.Format(time.RFC3339)
			return d, nil
		}
		d.State = StateLicensed
		d.Allowed = true
		return d, nil
	case qerrors.Is(err, qerrors.KindNotFound):
		// fall through to the trial window
	default:
		return nil, fmt.Errorf("load license: %w", err)
	}

	if tenant.TrialExpired(now) {
		d.State = StateTrialExpired
		d.Reason = "trial ended " + tenant.TrialEnd.Format(time.RFC3339)
		return d, nil
	}
	d.State = StateTrial
	d.Allowed = true
	return d, nil
}

// CheckAccess evaluates the tenant and converts a denial into a license
// error suitable for returning to clients.
func (g *Gate) CheckAccess(ctx context.Context, tenantID uuid.UUID, now time.Time) (*Decision, error) {
	d, err := g.Evaluate(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		g.logger.Warn().
			Str("tenant_id", tenantID.String()).
			Str("state", string(d.State)).
			Msg("write access denied")
		return d, qerrors.New(qerrors.KindLicense, d.Reason)
	}
	return d, nil
}
