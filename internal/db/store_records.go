package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// ApplyMutations applies a batch of client mutations in order, enforcing the
// per-tenant sequence contract: each mutation's Seq must be exactly the next
// value the server expects. The first out-of-order mutation aborts the whole
// batch with a conflict and nothing is committed. Returns the new server
// sequence on success.
func (db *DB) ApplyMutations(ctx context.Context, tenantID uuid.UUID, muts []*models.Mutation) (int64, error) {
	var serverSeq int64

	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		var nextSeq int64
		err := tx.QueryRow(ctx, `
			SELECT next_seq, server_seq FROM sync_state
			WHERE tenant_id = $1 FOR UPDATE
		`, tenantID).Scan(&nextSeq, &serverSeq)
		if err != nil {
			if err == pgx.ErrNoRows {
				return qerrors.New(qerrors.KindNotFound, "tenant has no sync state")
			}
			return fmt.Errorf("lock sync state: %w", err)
		}

		for _, m := range muts {
			if m.Seq != nextSeq {
				return qerrors.New(qerrors.KindConflict,
					fmt.Sprintf("mutation seq %d does not match expected %d", m.Seq, nextSeq))
			}
			if err := m.Validate(); err != nil {
				return qerrors.Wrap(qerrors.KindValidation, "invalid mutation", err)
			}
			if err := applyMutation(ctx, tx, tenantID, m); err != nil {
				return err
			}
			nextSeq++
			serverSeq++
		}

		_, err = tx.Exec(ctx, `
			UPDATE sync_state SET next_seq = $1, server_seq = $2, updated_at = $3
			WHERE tenant_id = $4
		`, nextSeq, serverSeq, time.Now().UTC(), tenantID)
		if err != nil {
			return fmt.Errorf("advance sync state: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return serverSeq, nil
}

func applyMutation(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, m *models.Mutation) error {
	now := time.Now().UTC()

	switch m.Op {
	case models.OpCreate, models.OpUpdate:
		_, err := tx.Exec(ctx, `
			INSERT INTO records (tenant_id, table_name, id, payload, deleted, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, $5)
			ON CONFLICT (tenant_id, table_name, id)
			DO UPDATE SET payload = EXCLUDED.payload, deleted = FALSE, updated_at = EXCLUDED.updated_at
		`, tenantID, string(m.Table), m.RecordID, m.Payload, now)
		if err != nil {
			return fmt.Errorf("upsert record: %w", err)
		}
	case models.OpDelete:
		_, err := tx.Exec(ctx, `
			UPDATE records SET deleted = TRUE, updated_at = $1
			WHERE tenant_id = $2 AND table_name = $3 AND id = $4
		`, now, tenantID, string(m.Table), m.RecordID)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
	}

	if m.Table == models.TableAccounts {
		return mirrorAccount(ctx, tx, tenantID, m, now)
	}
	return nil
}

// mirrorAccount keeps the typed accounts table in step with the opaque record
// so purge can reset balances with plain SQL.
func mirrorAccount(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, m *models.Mutation, now time.Time) error {
	if m.Op == models.OpDelete {
		_, err := tx.Exec(ctx, `
			DELETE FROM accounts WHERE tenant_id = $1 AND id = $2
		`, tenantID, m.RecordID)
		if err != nil {
			return fmt.Errorf("delete account mirror: %w", err)
		}
		return nil
	}

	var acct models.Account
	if err := json.Unmarshal(m.Payload, &acct); err != nil {
		return qerrors.Wrap(qerrors.KindValidation, "account payload is not valid", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, tenant_id, name, currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, currency = EXCLUDED.currency,
		              balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, m.RecordID, tenantID, acct.Name, acct.Currency, acct.Balance, now)
	if err != nil {
		return fmt.Errorf("upsert account mirror: %w", err)
	}
	return nil
}

// BuildSnapshot assembles the full current state of one tenant as a snapshot
// envelope. Soft-deleted rows are omitted.
func (db *DB) BuildSnapshot(ctx context.Context, tenantID uuid.UUID) (*models.Snapshot, error) {
	snap := models.NewSnapshot(tenantID)

	err := db.Pool.QueryRow(ctx, `
		SELECT next_seq, server_seq FROM sync_state WHERE tenant_id = $1
	`, tenantID).Scan(&snap.NextSeq, &snap.ServerSeq)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, qerrors.New(qerrors.KindNotFound, "tenant has no sync state")
		}
		return nil, fmt.Errorf("read sync state: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT table_name, id, payload FROM records
		WHERE tenant_id = $1 AND NOT deleted
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName string
		var id uuid.UUID
		var payload json.RawMessage
		if err := rows.Scan(&tableName, &id, &payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		table, err := models.ParseRecordTable(tableName)
		if err != nil {
			continue // unknown table names are skipped, not fatal
		}
		snap.Rows(table)[id] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	snap.SyncedAt = time.Now().UTC()
	return snap, nil
}

// GetSyncState returns the tenant's current sequence cursor.
func (db *DB) GetSyncState(ctx context.Context, tenantID uuid.UUID) (nextSeq, serverSeq int64, err error) {
	err = db.Pool.QueryRow(ctx, `
		SELECT next_seq, server_seq FROM sync_state WHERE tenant_id = $1
	`, tenantID).Scan(&nextSeq, &serverSeq)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, 0, qerrors.New(qerrors.KindNotFound, "tenant has no sync state")
		}
		return 0, 0, fmt.Errorf("read sync state: %w", err)
	}
	return nextSeq, serverSeq, nil
}
