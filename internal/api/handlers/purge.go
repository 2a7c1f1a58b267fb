package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/api/middleware"
	"github.com/quillbooks/quillbooks/internal/events"
	"github.com/quillbooks/quillbooks/internal/metrics"
	"github.com/quillbooks/quillbooks/internal/models"
)

// PurgeStore defines the persistence operations the purge endpoint needs.
type PurgeStore interface {
	BuildSnapshot(ctx context.Context, tenantID uuid.UUID) (*models.Snapshot, error)
	PurgeTransactionalData(ctx context.Context, tenantID, actorID uuid.UUID, archiveKey string) (*models.PurgeResult, error)
	ListPurgeAudits(ctx context.Context, tenantID uuid.UUID) ([]*models.PurgeAudit, error)
}

// SnapshotArchiver uploads a snapshot before it is destroyed.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, snap *models.Snapshot) (string, error)
}

// PurgeHandler serves the destructive transactional-data reset.
type PurgeHandler struct {
	store    PurgeStore
	archiver SnapshotArchiver
	metrics  *metrics.Metrics
	hub      *events.Hub
	logger   zerolog.Logger
}

// NewPurgeHandler creates a new PurgeHandler. Archiver and hub may be nil.
func NewPurgeHandler(store PurgeStore, archiver SnapshotArchiver, m *metrics.Metrics, hub *events.Hub, logger zerolog.Logger) *PurgeHandler {
	return &PurgeHandler{
		store:    store,
		archiver: archiver,
		metrics:  m,
		hub:      hub,
		logger:   logger.With().Str("component", "purge_handler").Logger(),
	}
}

// RegisterRoutes registers purge routes on a tenant-admin group.
func (h *PurgeHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.DELETE("/tenants/:id/transactional-data", h.Purge)
	r.GET("/tenants/:id/purges", h.History)
}

// Purge deletes every transactional record for the tenant and resets account
// balances, atomically. Master records survive. When archiving is enabled the
// full snapshot is uploaded first; an archive failure aborts the purge.
// DELETE /api/v1/tenants/:id/transactional-data
func (h *PurgeHandler) Purge(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	actorID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	pathTenant, err := uuid.Parse(c.Param("id"))
	if err != nil || pathTenant != tenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "path tenant does not match request tenant"})
		return
	}

	var archiveKey string
	if h.archiver != nil {
		snap, err := h.store.BuildSnapshot(c.Request.Context(), tenantID)
		if err != nil {
			respondError(c, err)
			return
		}
		archiveKey, err = h.archiver.ArchiveSnapshot(c.Request.Context(), snap)
		if err != nil {
			h.logger.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("pre-purge archive failed, aborting purge")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pre-purge archive failed"})
			return
		}
	}

	result, err := h.store.PurgeTransactionalData(c.Request.Context(), tenantID, actorID, archiveKey)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("purge failed")
		respondError(c, err)
		return
	}

	h.metrics.PurgesTotal.Inc()
	h.metrics.PurgedRecords.Add(float64(result.RecordsDeleted))
	if h.hub != nil {
		h.hub.Publish(&events.Event{Type: events.EventPurgeExecuted, TenantID: tenantID})
	}

	h.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("actor_id", actorID.String()).
		Int64("records_deleted", result.RecordsDeleted).
		Int64("accounts_reset", result.AccountsReset).
		Msg("transactional data purged")

	c.JSON(http.StatusOK, gin.H{"success": true, "details": result})
}

// History lists the tenant's purge audit trail.
// GET /api/v1/tenants/:id/purges
func (h *PurgeHandler) History(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)

	pathTenant, err := uuid.Parse(c.Param("id"))
	if err != nil || pathTenant != tenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "path tenant does not match request tenant"})
		return
	}

	audits, err := h.store.ListPurgeAudits(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purges": audits})
}
