package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quillbooks/quillbooks/internal/models"
)

// PurgeTransactionalData deletes every transactional record for a tenant,
// zeroes account balances, and writes the audit row, all in one transaction.
// Master records other than account balances are untouched. A second call
// against an already-clean tenant succeeds and reports zero deletions.
func (db *DB) PurgeTransactionalData(ctx context.Context, tenantID, actorID uuid.UUID, archiveKey string) (*models.PurgeResult, error) {
	audit := &models.PurgeAudit{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ActorID:     actorID,
		TableCounts: make(map[models.RecordTable]int64),
		ArchiveKey:  archiveKey,
		ExecutedAt:  time.Now().UTC(),
	}

	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		// Serialize against concurrent pushes for the same tenant.
		_, err := tx.Exec(ctx, `
			SELECT 1 FROM sync_state WHERE tenant_id = $1 FOR UPDATE
		`, tenantID)
		if err != nil {
			return fmt.Errorf("lock sync state: %w", err)
		}

		for _, table := range models.TransactionalTables() {
			tag, err := tx.Exec(ctx, `
				DELETE FROM records WHERE tenant_id = $1 AND table_name = $2
			`, tenantID, string(table))
			if err != nil {
				return fmt.Errorf("purge table %s: %w", table, err)
			}
			audit.TableCounts[table] = tag.RowsAffected()
		}

		tag, err := tx.Exec(ctx, `
			UPDATE accounts SET balance = 0, updated_at = $1
			WHERE tenant_id = $2 AND balance <> 0
		`, audit.ExecutedAt, tenantID)
		if err != nil {
			return fmt.Errorf("reset account balances: %w", err)
		}
		audit.AccountsReset = tag.RowsAffected()

		// Account payloads in the records table carry the balance too; keep
		// them consistent with the typed column.
		_, err = tx.Exec(ctx, `
			UPDATE records
			SET payload = jsonb_set(payload, '{balance}', '"0"'::jsonb),
			    updated_at = $1
			WHERE tenant_id = $2 AND table_name = $3 AND NOT deleted
		`, audit.ExecutedAt, tenantID, string(models.TableAccounts))
		if err != nil {
			return fmt.Errorf("reset account record payloads: %w", err)
		}

		counts, err := json.Marshal(audit.TableCounts)
		if err != nil {
			return fmt.Errorf("encode table counts: %w", err)
		}
		var key *string
		if audit.ArchiveKey != "" {
			key = &audit.ArchiveKey
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO purge_audits (id, tenant_id, actor_id, table_counts, accounts_reset, archive_key, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, audit.ID, audit.TenantID, audit.ActorID, counts, audit.AccountsReset, key, audit.ExecutedAt)
		if err != nil {
			return fmt.Errorf("insert purge audit: %w", err)
		}

		// Advance the server sequence so clients holding an older snapshot
		// know to pull again.
		_, err = tx.Exec(ctx, `
			UPDATE sync_state SET server_seq = server_seq + 1, updated_at = $1
			WHERE tenant_id = $2
		`, audit.ExecutedAt, tenantID)
		if err != nil {
			return fmt.Errorf("advance sync state: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.PurgeResult{
		TablesCleared:  models.TransactionalTables(),
		RecordsDeleted: audit.RecordsDeleted(),
		AccountsReset:  audit.AccountsReset,
	}, nil
}

// ListPurgeAudits returns a tenant's purge history, newest first.
func (db *DB) ListPurgeAudits(ctx context.Context, tenantID uuid.UUID) ([]*models.PurgeAudit, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, actor_id, table_counts, accounts_reset, archive_key, executed_at
		FROM purge_audits WHERE tenant_id = $1 ORDER BY executed_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list purge audits: %w", err)
	}
	defer rows.Close()

	var out []*models.PurgeAudit
	for rows.Next() {
		var a models.PurgeAudit
		var counts []byte
		var key *string
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ActorID, &counts, &a.AccountsReset, &key, &a.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan purge audit: %w", err)
		}
		if err := json.Unmarshal(counts, &a.TableCounts); err != nil {
			return nil, fmt.Errorf("decode table counts: %w", err)
		}
		if key != nil {
			a.ArchiveKey = *key
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
