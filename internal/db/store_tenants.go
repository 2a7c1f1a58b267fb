package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// CreateTenant registers a new tenant with its trial window.
func (db *DB) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO tenants (id, name, suspended, trial_start, trial_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tenant.ID, tenant.Name, tenant.Suspended, tenant.TrialStart, tenant.TrialEnd, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	// Seed the sync cursor so the first push starts at seq 1.
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO sync_state (tenant_id) VALUES ($1)
	`, tenant.ID); err != nil {
		return fmt.Errorf("seed sync state: %w", err)
	}
	return nil
}

// GetTenantByID returns one tenant.
func (db *DB) GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, suspended, trial_start, trial_end, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Suspended, &t.TrialStart, &t.TrialEnd, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, qerrors.New(qerrors.KindNotFound, "tenant not found")
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// ListTenants returns every tenant, newest first. Operator surface only.
func (db *DB) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, suspended, trial_start, trial_end, created_at, updated_at
		FROM tenants ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Suspended, &t.TrialStart, &t.TrialEnd, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// SetTenantSuspended toggles the suspension overlay. Suspension is reversible
// and does not alter the underlying license state.
func (db *DB) SetTenantSuspended(ctx context.Context, id uuid.UUID, suspended bool) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE tenants SET suspended = $2, updated_at = now() WHERE id = $1
	`, id, suspended)
	if err != nil {
		return fmt.Errorf("update tenant suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return qerrors.New(qerrors.KindNotFound, "tenant not found")
	}
	return nil
}
