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

// IssueLicense activates a license for a tenant. Any currently active
// license is expired first so the one-active-per-tenant index holds.
func (db *DB) IssueLicense(ctx context.Context, lic *models.License) error {
	now := time.Now().UTC()
	lic.Status = models.LicenseActive
	lic.IssuedAt = now
	lic.CreatedAt = now
	lic.UpdatedAt = now

	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE licenses SET status = $1, updated_at = $2
			WHERE tenant_id = $3 AND status = $4
		`, string(models.LicenseExpired), now, lic.TenantID, string(models.LicenseActive))
		if err != nil {
			return fmt.Errorf("expire prior license: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO licenses (id, tenant_id, type, status, issued_at, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, lic.ID, lic.TenantID, string(lic.Type), string(lic.Status), lic.IssuedAt, lic.ExpiresAt, lic.CreatedAt, lic.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert license: %w", err)
		}
		return nil
	})
}

// GetActiveLicense returns the active license for a tenant, if any.
func (db *DB) GetActiveLicense(ctx context.Context, tenantID uuid.UUID) (*models.License, error) {
	var lic models.License
	var typ, status string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, type, status, issued_at, expires_at, created_at, updated_at
		FROM licenses WHERE tenant_id = $1 AND status = $2
	`, tenantID, string(models.LicenseActive)).Scan(
		&lic.ID, &lic.TenantID, &typ, &status, &lic.IssuedAt, &lic.ExpiresAt, &lic.CreatedAt, &lic.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, qerrors.New(qerrors.KindNotFound, "no active license")
		}
		return nil, fmt.Errorf("get active license: %w", err)
	}
	lic.Type = models.LicenseType(typ)
	lic.Status = models.LicenseStatus(status)
	return &lic, nil
}

// ListLicenses returns all licenses for a tenant, newest first.
func (db *DB) ListLicenses(ctx context.Context, tenantID uuid.UUID) ([]*models.License, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, type, status, issued_at, expires_at, created_at, updated_at
		FROM licenses WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var out []*models.License
	for rows.Next() {
		var lic models.License
		var typ, status string
		if err := rows.Scan(&lic.ID, &lic.TenantID, &typ, &status, &lic.IssuedAt, &lic.ExpiresAt, &lic.CreatedAt, &lic.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		lic.Type = models.LicenseType(typ)
		lic.Status = models.LicenseStatus(status)
		out = append(out, &lic)
	}
	return out, rows.Err()
}

// SetLicenseStatus transitions one license row.
func (db *DB) SetLicenseStatus(ctx context.Context, licenseID uuid.UUID, status models.LicenseStatus) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE licenses SET status = $1, updated_at = $2 WHERE id = $3
	`, string(status), time.Now().UTC(), licenseID)
	if err != nil {
		return fmt.Errorf("set license status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return qerrors.New(qerrors.KindNotFound, "license not found")
	}
	return nil
}

// ExpireLapsedLicenses marks active time-bound licenses whose expiry has
// passed as expired. Returns the number of rows transitioned.
func (db *DB) ExpireLapsedLicenses(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE licenses SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2
	`, string(models.LicenseExpired), now.UTC(), string(models.LicenseActive))
	if err != nil {
		return 0, fmt.Errorf("expire lapsed licenses: %w", err)
	}
	return tag.RowsAffected(), nil
}
