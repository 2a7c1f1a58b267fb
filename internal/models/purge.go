package models

import (
	"time"

	"github.com/google/uuid"
)

// PurgeAudit is the append-only audit row recorded for every executed
// transactional-data purge.
type PurgeAudit struct {
	ID            uuid.UUID             `json:"id"`
	TenantID      uuid.UUID             `json:"tenant_id"`
	ActorID       uuid.UUID             `json:"actor_id"`
	TableCounts   map[RecordTable]int64 `json:"table_counts"`
	AccountsReset int64                 `json:"accounts_reset"`
	ArchiveKey    string                `json:"archive_key,omitempty"`
	ExecutedAt    time.Time             `json:"executed_at"`
}

// RecordsDeleted sums the per-table deletion counts.
func (a *PurgeAudit) RecordsDeleted() int64 {
	var total int64
	for _, n := range a.TableCounts {
		total += n
	}
	return total
}

// PurgeResult is the outcome of a purge, returned to the caller.
type PurgeResult struct {
	TablesCleared  []RecordTable `json:"tables_cleared"`
	RecordsDeleted int64         `json:"records_deleted"`
	AccountsReset  int64         `json:"accounts_reset"`
}
