// Package dispatch is the single entry point through which every
// create/update/delete of a business record passes on the client.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
	"github.com/quillbooks/quillbooks/internal/syncclient"
)

// LocalStore is the slice of the local store manager the dispatcher needs.
type LocalStore interface {
	Apply(ctx context.Context, mut *models.Mutation) error
	Loaded() bool
}

// Queue is the slice of the durable queue the dispatcher needs.
type Queue interface {
	NextSeq(ctx context.Context, tenantID uuid.UUID) (int64, error)
	Enqueue(ctx context.Context, mut *models.Mutation) error
}

// StaleChecker reports whether the snapshot has been invalidated.
type StaleChecker interface {
	IsStale() bool
}

// GateCache is the client-side view of the tenant's license gate, refreshed
// from server responses. The server remains authoritative; this cache only
// prevents building up local state the server is known to reject.
type GateCache struct {
	mu     sync.RWMutex
	denied bool
	reason string
}

// Allow marks mutations as permitted.
func (g *GateCache) Allow() {
	g.mu.Lock()
	g.denied = false
	g.reason = ""
	g.mu.Unlock()
}

// Deny marks mutations as blocked with a reason.
func (g *GateCache) Deny(reason string) {
	g.mu.Lock()
	g.denied = true
	g.reason = reason
	g.mu.Unlock()
}

// Check returns a license error when the gate is known to deny.
func (g *GateCache) Check() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.denied {
		return qerrors.New(qerrors.KindLicense, g.reason)
	}
	return nil
}

// Dispatcher applies mutations to the local store synchronously and enqueues
// them for network propagation. Applies are serialized: concurrent callers
// queue on one mutex, so local writes never interleave.
type Dispatcher struct {
	tenantID uuid.UUID
	store    LocalStore
	queue    Queue
	gate     *GateCache
	stale    StaleChecker
	logger   zerolog.Logger

	mu sync.Mutex
}

// New creates a Dispatcher for one tenant session.
func New(tenantID uuid.UUID, store LocalStore, queue Queue, gate *GateCache, stale StaleChecker, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		tenantID: tenantID,
		store:    store,
		queue:    queue,
		gate:     gate,
		stale:    stale,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Apply validates a mutation, checks the gate, applies it to the local store,
// and enqueues it with the next sequence number. A denied or invalid mutation
// never touches the local store.
func (d *Dispatcher) Apply(ctx context.Context, mut *models.Mutation) error {
	mut.TenantID = d.tenantID
	if mut.ID == uuid.Nil {
		mut.ID = uuid.New()
	}
	if mut.QueuedAt.IsZero() {
		mut.QueuedAt = time.Now().UTC()
	}

	if err := mut.Validate(); err != nil {
		return qerrors.Wrap(qerrors.KindValidation, "invalid mutation", err)
	}

	if err := d.gate.Check(); err != nil {
		d.logger.Warn().Str("table", string(mut.Table)).Err(err).Msg("mutation denied by license gate")
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stale.IsStale() {
		return syncclient.ErrSnapshotStale
	}
	if !d.store.Loaded() {
		return qerrors.New(qerrors.KindStorage, "no local snapshot loaded")
	}

	if err := d.store.Apply(ctx, mut); err != nil {
		return err
	}

	// Sequence numbers are drawn only after the local write lands; a failed
	// apply must not advance the counter past what the server will see.
	seq, err := d.queue.NextSeq(ctx, d.tenantID)
	if err != nil {
		return qerrors.Wrap(qerrors.KindStorage, "assign sequence number", err)
	}
	mut.Seq = seq

	if err := d.queue.Enqueue(ctx, mut); err != nil {
		// The local write stands; the next login's full pull reconciles.
		// Still surfaced so the caller knows propagation is not queued.
		return qerrors.Wrap(qerrors.KindStorage, "enqueue mutation", err)
	}

	d.logger.Debug().
		Int64("seq", mut.Seq).
		Str("table", string(mut.Table)).
		Str("op", string(mut.Op)).
		Msg("mutation applied and queued")
	return nil
}
