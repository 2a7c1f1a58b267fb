package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotVersion is the on-disk format version of serialized snapshots.
// Bump when the envelope shape changes.
const SnapshotVersion = 1

// Snapshot is the complete serialized state of one tenant's local database at
// a sync point. Exactly one snapshot is current for a tenant at any moment;
// it is replaced wholesale on pull and after a purge.
type Snapshot struct {
	Version   int                                         `json:"version"`
	TenantID  uuid.UUID                                   `json:"tenant_id"`
	ServerSeq int64                                       `json:"server_seq"`
	// NextSeq is the sequence number the server expects from the next pushed
	// mutation, captured in the same read as the snapshot rows so the client
	// can realign its counter after a pull.
	NextSeq  int64                                         `json:"next_seq"`
	SyncedAt time.Time                                     `json:"synced_at"`
	Tables   map[RecordTable]map[uuid.UUID]json.RawMessage `json:"tables"`
}

// NewSnapshot returns an empty snapshot for the given tenant with every known
// table present.
func NewSnapshot(tenantID uuid.UUID) *Snapshot {
	tables := make(map[RecordTable]map[uuid.UUID]json.RawMessage, len(AllTables()))
	for _, t := range AllTables() {
		tables[t] = make(map[uuid.UUID]json.RawMessage)
	}
	return &Snapshot{
		Version:  SnapshotVersion,
		TenantID: tenantID,
		Tables:   tables,
	}
}

// Rows returns the row map for a table, creating it if absent.
func (s *Snapshot) Rows(table RecordTable) map[uuid.UUID]json.RawMessage {
	rows, ok := s.Tables[table]
	if !ok {
		rows = make(map[uuid.UUID]json.RawMessage)
		s.Tables[table] = rows
	}
	return rows
}

// RowCount returns the number of rows stored for a table.
func (s *Snapshot) RowCount(table RecordTable) int {
	return len(s.Tables[table])
}

// Encode serializes the snapshot to bytes.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses snapshot bytes, rejecting unknown format versions and
// snapshots belonging to a different tenant.
func DecodeSnapshot(data []byte, tenantID uuid.UUID) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	if s.TenantID != tenantID {
		return nil, fmt.Errorf("snapshot belongs to tenant %s, expected %s", s.TenantID, tenantID)
	}
	if s.Tables == nil {
		s.Tables = make(map[RecordTable]map[uuid.UUID]json.RawMessage)
	}
	return &s, nil
}
