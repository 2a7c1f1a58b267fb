package localstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileBackend is the fallback snapshot tier: one file per tenant under a fixed
// directory. Writes go through a temp file and rename so a crash mid-write
// never leaves a torn snapshot.
type FileBackend struct {
	dir    string
	logger zerolog.Logger
}

// NewFileBackend creates the fallback tier rooted at dir.
func NewFileBackend(dir string, logger zerolog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create fallback directory: %w", err)
	}
	return &FileBackend{
		dir:    dir,
		logger: logger.With().Str("component", "file_backend").Logger(),
	}, nil
}

// Name identifies the tier in logs and diagnostics.
func (b *FileBackend) Name() string { return "file" }

// path returns the fixed per-tenant snapshot path for this tier.
func (b *FileBackend) path(tenantID string) string {
	return filepath.Join(b.dir, "snapshot-"+tenantID+".json")
}

// TryLoad returns the stored bytes for the tenant, or ErrSnapshotNotFound.
func (b *FileBackend) TryLoad(ctx context.Context, tenantID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return data, nil
}

// TryPersist durably stores the bytes under the tenant's fixed key.
func (b *FileBackend) TryPersist(ctx context.Context, tenantID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := b.path(tenantID)
	tmp, err := os.CreateTemp(b.dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// TryClear removes the stored bytes for the tenant, if any.
func (b *FileBackend) TryClear(ctx context.Context, tenantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(b.path(tenantID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot file: %w", err)
	}
	return nil
}

// Close is a no-op for the file tier.
func (b *FileBackend) Close() error { return nil }
