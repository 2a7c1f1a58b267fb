package syncclient

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/quillbooks/quillbooks/internal/models"
)

// SQLiteQueue implements QueueStore using SQLite for local persistence.
// Queued mutations survive restarts; the per-tenant sequence counter lives in
// the same database so assignment and enqueue share one durability domain.
type SQLiteQueue struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteQueue opens (or creates) the queue database in configDir.
func NewSQLiteQueue(configDir string, logger zerolog.Logger) (*SQLiteQueue, error) {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	dbPath := filepath.Join(configDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	q := &SQLiteQueue{
		db:     db,
		logger: logger.With().Str("component", "mutation_queue").Logger(),
	}

	if err := q.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	q.logger.Info().Str("path", dbPath).Msg("mutation queue initialized")
	return q, nil
}

func (q *SQLiteQueue) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS mutation_queue (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			table_name TEXT NOT NULL,
			op TEXT NOT NULL,
			record_id TEXT NOT NULL,
			payload BLOB,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			queued_at TEXT NOT NULL,
			pushed_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_mutation_queue_status ON mutation_queue(tenant_id, status, seq);

		-- Rejected rows are kept for surfacing; only live rows hold their
		-- sequence number, so a realigned counter can reuse it.
		CREATE UNIQUE INDEX IF NOT EXISTS idx_mutation_queue_active_seq
			ON mutation_queue(tenant_id, seq)
			WHERE status IN ('pending', 'pushing');

		CREATE TABLE IF NOT EXISTS seq_counters (
			tenant_id TEXT PRIMARY KEY,
			next_seq INTEGER NOT NULL
		);
	`
	_, err := q.db.Exec(schema)
	return err
}

// NextSeq atomically reserves and returns the next per-tenant sequence number.
func (q *SQLiteQueue) NextSeq(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		"SELECT next_seq FROM seq_counters WHERE tenant_id = ?", tenantID.String()).Scan(&seq)
	switch {
	case err == sql.ErrNoRows:
		seq = 1
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO seq_counters (tenant_id, next_seq) VALUES (?, 2)", tenantID.String()); err != nil {
			return 0, fmt.Errorf("initialize sequence counter: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("read sequence counter: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			"UPDATE seq_counters SET next_seq = ? WHERE tenant_id = ?", seq+1, tenantID.String()); err != nil {
			return 0, fmt.Errorf("advance sequence counter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sequence counter: %w", err)
	}
	return seq, nil
}

// ResetSeq realigns the per-tenant sequence counter to the server's cursor.
func (q *SQLiteQueue) ResetSeq(ctx context.Context, tenantID uuid.UUID, next int64) error {
	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO seq_counters (tenant_id, next_seq) VALUES (?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET next_seq = excluded.next_seq
	`, tenantID.String(), next); err != nil {
		return fmt.Errorf("reset sequence counter: %w", err)
	}
	q.logger.Debug().Str("tenant_id", tenantID.String()).Int64("next_seq", next).Msg("sequence counter realigned")
	return nil
}

// Enqueue appends a mutation. Seq must already be assigned.
func (q *SQLiteQueue) Enqueue(ctx context.Context, mut *models.Mutation) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO mutation_queue (id, tenant_id, seq, table_name, op, record_id, payload, status, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)
	`,
		mut.ID.String(),
		mut.TenantID.String(),
		mut.Seq,
		string(mut.Table),
		string(mut.Op),
		mut.RecordID.String(),
		[]byte(mut.Payload),
		mut.QueuedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("enqueue mutation: %w", err)
	}
	return nil
}

// ListPending returns pending mutations ordered by seq ascending.
func (q *SQLiteQueue) ListPending(ctx context.Context, tenantID uuid.UUID) ([]*QueuedMutation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, seq, table_name, op, record_id, payload, status, attempts, last_error, queued_at, pushed_at
		FROM mutation_queue
		WHERE tenant_id = ? AND status IN ('pending', 'pushing')
		ORDER BY seq ASC
	`, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("query pending mutations: %w", err)
	}
	defer rows.Close()

	var muts []*QueuedMutation
	for rows.Next() {
		qm, err := scanQueuedMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued mutation: %w", err)
		}
		muts = append(muts, qm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending mutations: %w", err)
	}
	return muts, nil
}

// MarkStatus updates the status of one queued mutation.
func (q *SQLiteQueue) MarkStatus(ctx context.Context, id uuid.UUID, status QueuedStatus, attempts int, lastError string) error {
	var pushedAt sql.NullString
	if status == StatusPushed {
		pushedAt = sql.NullString{String: time.Now().UTC().Format(time.RFC3339Nano), Valid: true}
	}

	result, err := q.db.ExecContext(ctx, `
		UPDATE mutation_queue
		SET status = ?, attempts = ?, last_error = ?, pushed_at = ?
		WHERE id = ?
	`, string(status), attempts, nullString(lastError), pushedAt, id.String())
	if err != nil {
		return fmt.Errorf("update queued mutation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrMutationNotFound
	}
	return nil
}

// Remove deletes a queued mutation after a successful push.
func (q *SQLiteQueue) Remove(ctx context.Context, id uuid.UUID) error {
	result, err := q.db.ExecContext(ctx, "DELETE FROM mutation_queue WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete queued mutation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrMutationNotFound
	}
	return nil
}

// Clear drops all queued mutations for a tenant.
func (q *SQLiteQueue) Clear(ctx context.Context, tenantID uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx,
		"DELETE FROM mutation_queue WHERE tenant_id = ?", tenantID.String()); err != nil {
		return fmt.Errorf("clear mutation queue: %w", err)
	}
	return nil
}

// PendingCount returns the number of pending mutations for a tenant.
func (q *SQLiteQueue) PendingCount(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mutation_queue WHERE tenant_id = ? AND status IN ('pending', 'pushing')",
		tenantID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending mutations: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func scanQueuedMutation(rows *sql.Rows) (*QueuedMutation, error) {
	var (
		idStr, tenantStr, tableStr, opStr, recordStr, statusStr, queuedAtStr string
		seq                                                                  int64
		payload                                                              []byte
		attempts                                                             int
		lastError, pushedAtStr                                               sql.NullString
	)

	if err := rows.Scan(&idStr, &tenantStr, &seq, &tableStr, &opStr, &recordStr, &payload,
		&statusStr, &attempts, &lastError, &queuedAtStr, &pushedAtStr); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	tenantID, err := uuid.Parse(tenantStr)
	if err != nil {
		return nil, fmt.Errorf("parse tenant id: %w", err)
	}
	recordID, err := uuid.Parse(recordStr)
	if err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	queuedAt, err := time.Parse(time.RFC3339Nano, queuedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse queued_at: %w", err)
	}

	qm := &QueuedMutation{
		Mutation: models.Mutation{
			ID:       id,
			TenantID: tenantID,
			Seq:      seq,
			Table:    models.RecordTable(tableStr),
			Op:       models.MutationOp(opStr),
			RecordID: recordID,
			Payload:  payload,
			QueuedAt: queuedAt,
		},
		Status:   QueuedStatus(statusStr),
		Attempts: attempts,
	}
	if lastError.Valid {
		qm.LastError = lastError.String
	}
	if pushedAtStr.Valid {
		if t, err := time.Parse(time.RFC3339Nano, pushedAtStr.String); err == nil {
			qm.PushedAt = &t
		}
	}
	return qm, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
