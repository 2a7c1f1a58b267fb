// Package localstore owns the serialized local database for the current
// tenant. Snapshot bytes are persisted through an explicit ordered list of
// storage backends: the SQLite tier first, then a flat-file fallback. A load
// never mixes partial reads from both tiers.
package localstore

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	// ErrSnapshotNotFound is returned when no snapshot exists in any tier.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Backend is one storage tier for snapshot bytes. Backends are tried in a
// deterministic order; any error from a tier moves iteration to the next.
type Backend interface {
	// Name identifies the tier in logs and diagnostics.
	Name() string
	// TryLoad returns the stored bytes for the tenant, or ErrSnapshotNotFound.
	TryLoad(ctx context.Context, tenantID string) ([]byte, error)
	// TryPersist durably stores the bytes under the tenant's fixed key.
	TryPersist(ctx context.Context, tenantID string, data []byte) error
	// TryClear removes the stored bytes for the tenant, if any.
	TryClear(ctx context.Context, tenantID string) error
	// Close releases backend resources.
	Close() error
}
