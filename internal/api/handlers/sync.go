package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/api/middleware"
	"github.com/quillbooks/quillbooks/internal/events"
	"github.com/quillbooks/quillbooks/internal/license"
	"github.com/quillbooks/quillbooks/internal/metrics"
	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// SyncStore defines the persistence operations the sync endpoints need.
type SyncStore interface {
	BuildSnapshot(ctx context.Context, tenantID uuid.UUID) (*models.Snapshot, error)
	ApplyMutations(ctx context.Context, tenantID uuid.UUID, muts []*models.Mutation) (int64, error)
	GetSyncState(ctx context.Context, tenantID uuid.UUID) (nextSeq, serverSeq int64, err error)
}

// SyncHandler serves full snapshot pulls and ordered mutation pushes.
type SyncHandler struct {
	store   SyncStore
	gate    *license.Gate
	metrics *metrics.Metrics
	hub     *events.Hub
	logger  zerolog.Logger
}

// NewSyncHandler creates a new SyncHandler. The hub may be nil.
func NewSyncHandler(store SyncStore, gate *license.Gate, m *metrics.Metrics, hub *events.Hub, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		store:   store,
		gate:    gate,
		metrics: m,
		hub:     hub,
		logger:  logger.With().Str("component", "sync_handler").Logger(),
	}
}

// RegisterRoutes registers sync routes on a tenant-authenticated group.
func (h *SyncHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/sync/snapshot", h.PullSnapshot)
	r.GET("/sync/state", h.State)
	r.POST("/sync/mutations", h.PushMutations)
}

// PullSnapshot serves the tenant's complete current state. Reads are served
// regardless of license state so an expired tenant can still see its data.
// GET /api/v1/sync/snapshot
func (h *SyncHandler) PullSnapshot(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)

	snap, err := h.store.BuildSnapshot(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("snapshot build failed")
		respondError(c, err)
		return
	}

	data, err := snap.Encode()
	if err != nil {
		respondError(c, err)
		return
	}
	h.metrics.PullsTotal.Inc()
	h.metrics.SnapshotSizeBytes.Observe(float64(len(data)))

	c.Data(http.StatusOK, "application/json", data)
}

// State reports the tenant's sequence cursor without snapshot data, so
// clients can cheaply decide whether a full pull is needed. The gate's
// current verdict rides along so offline clients learn about an expiry on
// their first request back, not their first rejected push.
// GET /api/v1/sync/state
func (h *SyncHandler) State(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)

	nextSeq, serverSeq, err := h.store.GetSyncState(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"next_seq": nextSeq, "server_seq": serverSeq}
	if decision, err := h.gate.Evaluate(c.Request.Context(), tenantID, time.Now().UTC()); err == nil {
		resp["license_state"] = decision.State
		resp["mutations_allowed"] = decision.Allowed
	}
	c.JSON(http.StatusOK, resp)
}

type pushRequest struct {
	Mutations []*models.Mutation `json:"mutations" binding:"required"`
}

// PushMutations applies a batch of client mutations in order. The batch is
// all-or-nothing: the first sequence conflict rejects the whole request and
// nothing commits.
// POST /api/v1/sync/mutations
func (h *SyncHandler) PushMutations(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)

	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Mutations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty mutation batch"})
		return
	}
	for _, m := range req.Mutations {
		if m.TenantID != tenantID {
			c.JSON(http.StatusForbidden, gin.H{"error": "mutation tenant does not match request tenant"})
			return
		}
	}

	// Writes require an active trial or license.
	decision, err := h.gate.CheckAccess(c.Request.Context(), tenantID, time.Now().UTC())
	if err != nil {
		if decision != nil {
			h.metrics.GateDenials.WithLabelValues(string(decision.State)).Inc()
		}
		respondError(c, err)
		return
	}

	serverSeq, err := h.store.ApplyMutations(c.Request.Context(), tenantID, req.Mutations)
	if err != nil {
		h.metrics.PushRejections.WithLabelValues(qerrors.KindOf(err).String()).Inc()
		respondError(c, err)
		return
	}

	h.metrics.PushesTotal.Inc()
	for _, m := range req.Mutations {
		h.metrics.MutationsApplied.WithLabelValues(string(m.Table)).Inc()
	}
	if h.hub != nil {
		h.hub.Publish(&events.Event{
			Type:      events.EventMutationsApplied,
			TenantID:  tenantID,
			ServerSeq: serverSeq,
		})
	}

	c.JSON(http.StatusOK, gin.H{"server_seq": serverSeq})
}

// ServeEvents upgrades the request to a WebSocket change feed for the tenant.
// GET /api/v1/sync/events
func (h *SyncHandler) ServeEvents(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "events feed disabled"})
		return
	}
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	if err := h.hub.Serve(c.Writer, c.Request, tenantID); err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
	}
}
