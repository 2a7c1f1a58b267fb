package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/metrics"
	"github.com/quillbooks/quillbooks/internal/models"
)

type fakeArchiver struct {
	key string
	err error
}

func (f *fakeArchiver) ArchiveSnapshot(context.Context, *models.Snapshot) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

func newPurgeRouter(t *testing.T, store *fakeSyncStore, archiver SnapshotArchiver, tenantID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := metrics.New(prometheus.NewRegistry())
	h := NewPurgeHandler(store, archiver, m, nil, zerolog.Nop())

	r := gin.New()
	group := r.Group("/api/v1", injectIdentity(tenantID, uuid.New(), models.RoleAdmin))
	h.RegisterRoutes(group)
	return r
}

func TestPurgeDeletesAndReports(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeSyncStore{
		purgeResult: &models.PurgeResult{
			TablesCleared:  models.TransactionalTables(),
			RecordsDeleted: 17,
			AccountsReset:  3,
		},
	}
	r := newPurgeRouter(t, store, nil, tenantID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/"+tenantID.String()+"/transactional-data", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.purged)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), `"records_deleted":17`)
}

func TestPurgeRejectsForeignTenantPath(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeSyncStore{}
	r := newPurgeRouter(t, store, nil, tenantID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/"+uuid.NewString()+"/transactional-data", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, store.purged)
}

func TestPurgeArchivesBeforeDeleting(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeSyncStore{}
	r := newPurgeRouter(t, store, &fakeArchiver{key: "pre-purge/abc.json"}, tenantID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/"+tenantID.String()+"/transactional-data", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, store.purged)
	assert.Equal(t, []string{"pre-purge/abc.json"}, store.purgeKeys, "archive key is recorded in the audit")
}

func TestPurgeAbortsWhenArchiveFails(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeSyncStore{}
	r := newPurgeRouter(t, store, &fakeArchiver{err: errors.New("bucket unreachable")}, tenantID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/"+tenantID.String()+"/transactional-data", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, store.purged, "nothing is deleted when the pre-purge archive fails")
}

func TestPurgeHistory(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeSyncStore{
		audits: []*models.PurgeAudit{{
			ID:          uuid.New(),
			TenantID:    tenantID,
			ActorID:     uuid.New(),
			TableCounts: map[models.RecordTable]int64{models.TableInvoices: 4},
			ExecutedAt:  time.Now().UTC(),
		}},
	}
	r := newPurgeRouter(t, store, nil, tenantID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/"+tenantID.String()+"/purges", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"invoices":4`)
}
