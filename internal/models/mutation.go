package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MutationOp is the kind of change a mutation applies.
type MutationOp string

const (
	// OpCreate inserts a new record.
	OpCreate MutationOp = "create"
	// OpUpdate replaces an existing record's payload.
	OpUpdate MutationOp = "update"
	// OpDelete soft-deletes a record.
	OpDelete MutationOp = "delete"
)

// IsValid checks whether the operation is a recognized value.
func (op MutationOp) IsValid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Mutation describes one create/update/delete of one business record.
// Seq is the client-assigned, per-tenant-session monotonic sequence number;
// the server rejects any push whose Seq is not the next expected value.
type Mutation struct {
	ID       uuid.UUID       `json:"id"`
	TenantID uuid.UUID       `json:"tenant_id"`
	Seq      int64           `json:"seq"`
	Table    RecordTable     `json:"table"`
	Op       MutationOp      `json:"op"`
	RecordID uuid.UUID       `json:"record_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Validate checks the mutation is structurally sound before it touches any store.
func (m *Mutation) Validate() error {
	if m.TenantID == uuid.Nil {
		return errors.New("mutation missing tenant id")
	}
	if m.RecordID == uuid.Nil {
		return errors.New("mutation missing record id")
	}
	if !m.Table.IsValid() {
		return errors.New("mutation has unknown table")
	}
	if !m.Op.IsValid() {
		return errors.New("mutation has unknown operation")
	}
	if m.Op != OpDelete && len(m.Payload) == 0 {
		return errors.New("mutation missing payload")
	}
	return nil
}
