package syncclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// ServerAPI is the slice of the cloud service the syncer needs.
type ServerAPI interface {
	CheckHealth(ctx context.Context) error
	SyncState(ctx context.Context) (*StateResponse, error)
	PullFull(ctx context.Context) (*models.Snapshot, error)
	Push(ctx context.Context, mut *models.Mutation) (*PushResponse, error)
}

// GateStatus is the client-side license gate cache the syncer keeps current
// from server responses.
type GateStatus interface {
	Allow()
	Deny(reason string)
}

// SnapshotStore is the slice of the local store manager the syncer needs.
type SnapshotStore interface {
	Replace(ctx context.Context, snap *models.Snapshot) error
	Clear(ctx context.Context) error
	Loaded() bool
}

// Config holds sync client tuning.
type Config struct {
	SyncInterval      time.Duration
	HealthCheckPeriod time.Duration
	RetryBackoff      time.Duration
	MaxRetries        int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SyncInterval:      30 * time.Second,
		HealthCheckPeriod: 10 * time.Second,
		RetryBackoff:      2 * time.Second,
		MaxRetries:        5,
	}
}

// Syncer drains the mutation queue against the cloud service and performs
// full snapshot pulls. All network cycles for a tenant session are serialized
// through one mutex: a pull in flight completes before a push cycle begins.
type Syncer struct {
	tenantID uuid.UUID
	api      ServerAPI
	store    SnapshotStore
	queue    QueueStore
	config   Config
	gate     GateStatus
	logger   zerolog.Logger

	cycleMu sync.Mutex // serializes pull/push cycles

	mu              sync.RWMutex
	stale           bool
	serverReachable bool
	lastSyncAttempt time.Time
	lastSuccessSync time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSyncer creates a sync client for one tenant session.
func NewSyncer(tenantID uuid.UUID, api ServerAPI, store SnapshotStore, queue QueueStore, config Config, logger zerolog.Logger) *Syncer {
	return &Syncer{
		tenantID: tenantID,
		api:      api,
		store:    store,
		queue:    queue,
		config:   config,
		logger:   logger.With().Str("component", "syncer").Logger(),
		stale:    true, // no snapshot until the first pull
		stopCh:   make(chan struct{}),
	}
}

// SetGate installs the license gate cache kept current from server responses.
func (s *Syncer) SetGate(gate GateStatus) {
	s.gate = gate
}

// applyGateState records the server's gate verdict in the local cache. State
// responses from older servers omit the gate fields; those leave the cache
// untouched.
func (s *Syncer) applyGateState(st *StateResponse) {
	if s.gate == nil || st.LicenseState == "" {
		return
	}
	if st.MutationsAllowed {
		s.gate.Allow()
		return
	}
	s.gate.Deny("license state " + st.LicenseState)
	s.logger.Warn().Str("license_state", st.LicenseState).Msg("server gate denies mutations")
}

// Start begins the background push loop and health monitoring.
func (s *Syncer) Start(ctx context.Context) error {
	if err := s.checkServerHealth(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial health check failed, starting offline")
	}

	s.wg.Add(2)
	go s.healthCheckLoop()
	go s.syncLoop()

	s.logger.Info().
		Dur("sync_interval", s.config.SyncInterval).
		Msg("sync client started")
	return nil
}

// Stop gracefully stops the background loops.
func (s *Syncer) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("sync client stopped")
}

// IsStale reports whether the local snapshot has been invalidated and a full
// pull is required before further mutations.
func (s *Syncer) IsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// MarkStale invalidates the local snapshot. Called after a purge and on
// sequence conflicts.
func (s *Syncer) MarkStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// AdoptLocal accepts an on-disk snapshot from a previous session as current.
// When the server is reachable its cursor must still match localSeq; a moved
// cursor keeps the snapshot stale so the next cycle pulls fresh. Offline, the
// snapshot is adopted optimistically since a stale push is rejected as a
// conflict anyway.
func (s *Syncer) AdoptLocal(ctx context.Context, localSeq int64) {
	if st, err := s.api.SyncState(ctx); err == nil {
		s.applyGateState(st)
		if st.ServerSeq != localSeq {
			s.logger.Info().
				Int64("local_seq", localSeq).
				Int64("server_seq", st.ServerSeq).
				Msg("server has moved on, local snapshot stays stale")
			return
		}
	}

	s.mu.Lock()
	s.stale = false
	s.mu.Unlock()
	s.logger.Debug().Int64("server_seq", localSeq).Msg("local snapshot adopted")
}

// IsServerReachable reports the last known server health.
func (s *Syncer) IsServerReachable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverReachable
}

// PullFull fetches the complete current state and replaces the local snapshot
// wholesale. Used at login and mandatorily after any destructive operation.
func (s *Syncer) PullFull(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	snap, err := s.api.PullFull(ctx)
	if err != nil {
		return err
	}

	if err := s.store.Replace(ctx, snap); err != nil {
		return err
	}

	// Realign the durable counter with the server cursor captured alongside
	// the snapshot. Sequence numbers consumed by discarded or rejected
	// mutations would otherwise leave every future push ahead of the server.
	if snap.NextSeq > 0 {
		if err := s.queue.ResetSeq(ctx, s.tenantID, snap.NextSeq); err != nil {
			return qerrors.Wrap(qerrors.KindStorage, "realign sequence counter", err)
		}
	}

	s.mu.Lock()
	s.stale = false
	s.lastSuccessSync = time.Now()
	s.mu.Unlock()

	s.logger.Info().Int64("server_seq", snap.ServerSeq).Msg("full pull complete")
	return nil
}

// PushQueued drains pending mutations strictly in sequence-number order.
// The first rejection stops the cycle: a later mutation pushed past a rejected
// one would be applied out of order by the server. Transient failures are
// retried with backoff without reordering.
func (s *Syncer) PushQueued(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	if s.IsStale() {
		return ErrSnapshotStale
	}

	s.mu.Lock()
	s.lastSyncAttempt = time.Now()
	s.mu.Unlock()

	pending, err := s.queue.ListPending(ctx, s.tenantID)
	if err != nil {
		return qerrors.Wrap(qerrors.KindStorage, "list pending mutations", err)
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info().Int("count", len(pending)).Msg("pushing queued mutations")

	for _, qm := range pending {
		if err := s.pushOne(ctx, qm); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.lastSuccessSync = time.Now()
	s.mu.Unlock()
	return nil
}

// pushOne sends a single mutation, retrying transient failures with
// exponential backoff. Non-transient rejections are terminal for the cycle.
func (s *Syncer) pushOne(ctx context.Context, qm *QueuedMutation) error {
	mut := &qm.Mutation

	if err := s.queue.MarkStatus(ctx, mut.ID, StatusPushing, qm.Attempts, ""); err != nil {
		return qerrors.Wrap(qerrors.KindStorage, "mark mutation pushing", err)
	}

	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		resp, err := s.api.Push(ctx, mut)
		if err == nil {
			if s.gate != nil {
				s.gate.Allow()
			}
			if err := s.queue.Remove(ctx, mut.ID); err != nil {
				return qerrors.Wrap(qerrors.KindStorage, "remove pushed mutation", err)
			}
			s.logger.Debug().
				Int64("seq", mut.Seq).
				Int64("server_seq", resp.ServerSeq).
				Str("table", string(mut.Table)).
				Msg("mutation pushed")
			return nil
		}

		switch qerrors.KindOf(err) {
		case qerrors.KindConflict:
			// Sequence mismatch: the server's view has moved. Invalidate
			// the snapshot; the caller resynchronizes with a full pull.
			s.MarkStale()
			_ = s.queue.MarkStatus(ctx, mut.ID, StatusRejected, attempt+1, err.Error())
			s.logger.Warn().Int64("seq", mut.Seq).Err(err).Msg("sequence conflict, forcing resync")
			return err
		case qerrors.KindNetwork:
			if attempt+1 >= s.config.MaxRetries {
				_ = s.queue.MarkStatus(ctx, mut.ID, StatusPending, attempt+1, err.Error())
				return err
			}
			s.logger.Debug().Int64("seq", mut.Seq).Int("attempt", attempt+1).Err(err).Msg("transient push failure, backing off")
			select {
			case <-ctx.Done():
				_ = s.queue.MarkStatus(context.WithoutCancel(ctx), mut.ID, StatusPending, attempt+1, ctx.Err().Error())
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		default:
			// Validation, license, or authorization rejection: surfaced,
			// never silently retried.
			if s.gate != nil && qerrors.KindOf(err) == qerrors.KindLicense {
				s.gate.Deny(err.Error())
			}
			_ = s.queue.MarkStatus(ctx, mut.ID, StatusRejected, attempt+1, err.Error())
			s.logger.Warn().Int64("seq", mut.Seq).Err(err).Msg("mutation rejected by server")
			return err
		}
	}
}

// Resync performs the forced-resync path after a conflict or purge: remaining
// queued mutations are surfaced as rejected (their sequence numbers are no
// longer meaningful) and the snapshot is replaced with a fresh pull.
func (s *Syncer) Resync(ctx context.Context) error {
	pending, err := s.queue.ListPending(ctx, s.tenantID)
	if err != nil {
		return qerrors.Wrap(qerrors.KindStorage, "list pending mutations", err)
	}
	for _, qm := range pending {
		_ = s.queue.MarkStatus(ctx, qm.Mutation.ID, StatusRejected, qm.Attempts, "discarded after resync")
	}
	if len(pending) > 0 {
		s.logger.Warn().Int("count", len(pending)).Msg("queued mutations discarded by resync")
	}
	return s.PullFull(ctx)
}

// Logout cancels any in-flight cycle via the caller's context, clears queued
// mutations, and drops the in-memory snapshot reference. Already-applied
// local writes survive on disk until the next login's pull overwrites them.
func (s *Syncer) Logout(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	if err := s.queue.Clear(ctx, s.tenantID); err != nil {
		return qerrors.Wrap(qerrors.KindStorage, "clear mutation queue", err)
	}
	s.MarkStale()
	s.logger.Info().Msg("logged out, queue cleared")
	return nil
}

// checkServerHealth probes the server and records reachability.
func (s *Syncer) checkServerHealth(ctx context.Context) error {
	err := s.api.CheckHealth(ctx)

	s.mu.Lock()
	s.serverReachable = err == nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug().Err(err).Msg("server health check failed")
	}
	return err
}

// healthCheckLoop periodically probes server reachability.
func (s *Syncer) healthCheckLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = s.checkServerHealth(ctx)
			cancel()
		}
	}
}

// syncLoop periodically pushes pending mutations while the server is reachable.
func (s *Syncer) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.IsServerReachable() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := s.PushQueued(ctx); err != nil && !errors.Is(err, ErrSnapshotStale) {
				s.logger.Debug().Err(err).Msg("periodic push failed")
			}
			cancel()
		}
	}
}
