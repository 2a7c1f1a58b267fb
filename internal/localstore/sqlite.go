package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteBackend is the primary snapshot tier: one row per tenant in a local
// SQLite database stored in the client config directory.
type SQLiteBackend struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteBackend opens (or creates) the snapshot database in configDir.
func NewSQLiteBackend(configDir string, logger zerolog.Logger) (*SQLiteBackend, error) {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	dbPath := filepath.Join(configDir, "local.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &SQLiteBackend{
		db:     db,
		logger: logger.With().Str("component", "sqlite_backend").Logger(),
	}

	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	b.logger.Info().Str("path", dbPath).Msg("snapshot database initialized")
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			tenant_id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Name identifies the tier in logs and diagnostics.
func (b *SQLiteBackend) Name() string { return "sqlite" }

// TryLoad returns the stored bytes for the tenant, or ErrSnapshotNotFound.
func (b *SQLiteBackend) TryLoad(ctx context.Context, tenantID string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT data FROM snapshots WHERE tenant_id = ?", tenantID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

// TryPersist durably stores the bytes under the tenant's fixed key.
func (b *SQLiteBackend) TryPersist(ctx context.Context, tenantID string, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO snapshots (tenant_id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, tenantID, data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// TryClear removes the stored bytes for the tenant, if any.
func (b *SQLiteBackend) TryClear(ctx context.Context, tenantID string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM snapshots WHERE tenant_id = ?", tenantID)
	if err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
