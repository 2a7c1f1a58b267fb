// Package syncclient drains the local mutation queue against the cloud data
// service and reconciles local state to the authoritative cloud state.
package syncclient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quillbooks/quillbooks/internal/models"
)

// QueuedStatus is the lifecycle state of one queued mutation.
type QueuedStatus string

const (
	// StatusPending means the mutation is waiting to be pushed.
	StatusPending QueuedStatus = "pending"
	// StatusPushing means a push attempt is in flight.
	StatusPushing QueuedStatus = "pushing"
	// StatusPushed means the server accepted the mutation.
	StatusPushed QueuedStatus = "pushed"
	// StatusRejected means the server refused the mutation; it will not be
	// retried and must be surfaced to the user.
	StatusRejected QueuedStatus = "rejected"
)

// QueuedMutation is one mutation waiting in the durable outgoing queue.
type QueuedMutation struct {
	Mutation   models.Mutation
	Status     QueuedStatus
	Attempts   int
	LastError  string
	PushedAt   *time.Time
}

// QueueStore is the durable local queue. Mutations are stored and drained
// strictly in sequence-number order.
type QueueStore interface {
	// Enqueue appends a mutation. Seq must already be assigned.
	Enqueue(ctx context.Context, mut *models.Mutation) error
	// NextSeq atomically reserves and returns the next per-tenant sequence number.
	NextSeq(ctx context.Context, tenantID uuid.UUID) (int64, error)
	// ResetSeq realigns the per-tenant sequence counter to the server's
	// cursor. Called after a full pull so queued-but-discarded sequence
	// numbers cannot leave the client permanently ahead of the server.
	ResetSeq(ctx context.Context, tenantID uuid.UUID, next int64) error
	// ListPending returns pending mutations ordered by seq ascending.
	ListPending(ctx context.Context, tenantID uuid.UUID) ([]*QueuedMutation, error)
	// MarkStatus updates the status of one queued mutation.
	MarkStatus(ctx context.Context, id uuid.UUID, status QueuedStatus, attempts int, lastError string) error
	// Remove deletes a queued mutation after a successful push.
	Remove(ctx context.Context, id uuid.UUID) error
	// Clear drops all queued mutations for a tenant. Used at logout and
	// after a purge invalidates the snapshot.
	Clear(ctx context.Context, tenantID uuid.UUID) error
	// PendingCount returns the number of pending mutations for a tenant.
	PendingCount(ctx context.Context, tenantID uuid.UUID) (int, error)
	// Close closes the store.
	Close() error
}

// Sentinel errors.
var (
	// ErrQueueEmpty is returned by push cycles that found nothing to send.
	ErrQueueEmpty = errors.New("mutation queue is empty")
	// ErrMutationNotFound is returned when a queued mutation cannot be found.
	ErrMutationNotFound = errors.New("queued mutation not found")
	// ErrSnapshotStale is returned when a purge or conflict has invalidated
	// the local snapshot; a full pull is required before further mutations.
	ErrSnapshotStale = errors.New("local snapshot is stale, full pull required")
)
