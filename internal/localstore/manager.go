package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// Manager owns the current local snapshot for one tenant. All mutations and
// snapshot replacements are serialized through a single mutex; callers never
// receive a live handle to the underlying tables.
type Manager struct {
	tenantID uuid.UUID
	backends []Backend
	logger   zerolog.Logger

	mu      sync.Mutex
	current *models.Snapshot
}

// NewManager creates a Manager over the given ordered backend list. The first
// backend is the primary tier; later entries are fallbacks.
func NewManager(tenantID uuid.UUID, backends []Backend, logger zerolog.Logger) *Manager {
	return &Manager{
		tenantID: tenantID,
		backends: backends,
		logger:   logger.With().Str("component", "localstore").Logger(),
	}
}

// Load reads the snapshot from the first tier that has it and makes it the
// current snapshot. Tiers are consulted in order; a read never mixes bytes
// from two tiers. Returns ErrSnapshotNotFound when no tier has a snapshot.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, tier, err := m.loadBytes(ctx)
	if err != nil {
		return err
	}

	snap, err := models.DecodeSnapshot(data, m.tenantID)
	if err != nil {
		return qerrors.Wrap(qerrors.KindStorage, "decode local snapshot", err)
	}

	m.current = snap
	m.logger.Info().
		Str("tier", tier).
		Int64("server_seq", snap.ServerSeq).
		Msg("local snapshot loaded")
	return nil
}

// loadBytes iterates the tiers in order. Callers hold m.mu.
func (m *Manager) loadBytes(ctx context.Context) ([]byte, string, error) {
	var lastErr error = ErrSnapshotNotFound
	for _, b := range m.backends {
		data, err := b.TryLoad(ctx, m.tenantID.String())
		if err == nil {
			return data, b.Name(), nil
		}
		if err != ErrSnapshotNotFound {
			m.logger.Warn().Err(err).Str("tier", b.Name()).Msg("snapshot tier load failed, trying next")
		}
		lastErr = err
	}
	if lastErr == ErrSnapshotNotFound {
		return nil, "", ErrSnapshotNotFound
	}
	return nil, "", qerrors.Wrap(qerrors.KindStorage, "all snapshot tiers failed", lastErr)
}

// persistLocked writes snapshot bytes to the first tier that accepts them.
// The previous bytes in that tier are only replaced once the write succeeds,
// so a failed persist leaves the old snapshot intact. Callers hold m.mu.
func (m *Manager) persistLocked(ctx context.Context, snap *models.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return qerrors.Wrap(qerrors.KindStorage, "encode snapshot", err)
	}

	var lastErr error
	for _, b := range m.backends {
		if err := b.TryPersist(ctx, m.tenantID.String(), data); err != nil {
			m.logger.Warn().Err(err).Str("tier", b.Name()).Msg("snapshot tier persist failed, trying next")
			lastErr = err
			continue
		}
		return nil
	}
	return qerrors.Wrap(qerrors.KindStorage, "all snapshot tiers failed", lastErr)
}

// Replace swaps in a freshly pulled snapshot and persists it. The in-memory
// state only changes after the bytes are durably written.
func (m *Manager) Replace(ctx context.Context, snap *models.Snapshot) error {
	if snap.TenantID != m.tenantID {
		return qerrors.New(qerrors.KindValidation, "snapshot tenant mismatch")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persistLocked(ctx, snap); err != nil {
		return err
	}
	m.current = snap
	m.logger.Info().Int64("server_seq", snap.ServerSeq).Msg("local snapshot replaced")
	return nil
}

// Apply applies one mutation to the current snapshot and persists the result.
// On persist failure the in-memory row is restored, so the snapshot never
// diverges from what is on disk.
func (m *Manager) Apply(ctx context.Context, mut *models.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return qerrors.New(qerrors.KindStorage, "no local snapshot loaded")
	}

	rows := m.current.Rows(mut.Table)
	prev, hadPrev := rows[mut.RecordID]

	switch mut.Op {
	case models.OpCreate, models.OpUpdate:
		rows[mut.RecordID] = mut.Payload
	case models.OpDelete:
		delete(rows, mut.RecordID)
	default:
		return qerrors.New(qerrors.KindValidation, "unknown mutation operation")
	}

	if err := m.persistLocked(ctx, m.current); err != nil {
		if hadPrev {
			rows[mut.RecordID] = prev
		} else {
			delete(rows, mut.RecordID)
		}
		return err
	}
	return nil
}

// ClearTables rewrites the snapshot excluding all rows from the named tables
// and resets account balances to zero, then re-persists. The old bytes are
// only discarded once the new bytes are written.
func (m *Manager) ClearTables(ctx context.Context, tables []models.RecordTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return qerrors.New(qerrors.KindStorage, "no local snapshot loaded")
	}

	next := models.NewSnapshot(m.tenantID)
	next.ServerSeq = m.current.ServerSeq
	next.SyncedAt = time.Now().UTC()

	cleared := make(map[models.RecordTable]bool, len(tables))
	for _, t := range tables {
		cleared[t] = true
	}

	for table, rows := range m.current.Tables {
		if cleared[table] {
			continue
		}
		dst := next.Rows(table)
		for id, payload := range rows {
			if table == models.TableAccounts {
				reset, err := zeroAccountBalance(payload)
				if err != nil {
					return qerrors.Wrap(qerrors.KindStorage, "reset account balance", err)
				}
				dst[id] = reset
				continue
			}
			dst[id] = payload
		}
	}

	if err := m.persistLocked(ctx, next); err != nil {
		return err
	}
	m.current = next
	m.logger.Info().Int("tables_cleared", len(tables)).Msg("local tables cleared")
	return nil
}

// Clear drops the snapshot from every tier and from memory. Used at logout
// and after a purge, before the forced full pull.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.backends {
		if err := b.TryClear(ctx, m.tenantID.String()); err != nil {
			m.logger.Warn().Err(err).Str("tier", b.Name()).Msg("snapshot tier clear failed")
		}
	}
	m.current = nil
	return nil
}

// Loaded reports whether a snapshot is currently held in memory.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// ServerSeq returns the server sequence recorded in the current snapshot.
func (m *Manager) ServerSeq() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return 0
	}
	return m.current.ServerSeq
}

// RowCount returns the number of rows held locally for a table.
func (m *Manager) RowCount(table models.RecordTable) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return 0
	}
	return m.current.RowCount(table)
}

// RecordIDs returns the identifiers held locally for a table.
func (m *Manager) RecordIDs(table models.RecordTable) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	rows := m.current.Tables[table]
	ids := make([]uuid.UUID, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	return ids
}

// GetRecord returns a copy of one row's payload.
func (m *Manager) GetRecord(table models.RecordTable, id uuid.UUID) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	payload, ok := m.current.Tables[table][id]
	if !ok {
		return nil, false
	}
	out := make(json.RawMessage, len(payload))
	copy(out, payload)
	return out, true
}

// Close releases every backend.
func (m *Manager) Close() error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// zeroAccountBalance decodes an account payload, zeroes the balance, and
// re-encodes it.
func zeroAccountBalance(payload json.RawMessage) (json.RawMessage, error) {
	var acct models.Account
	if err := json.Unmarshal(payload, &acct); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	acct.Balance = decimal.Zero
	out, err := json.Marshal(&acct)
	if err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	return out, nil
}
