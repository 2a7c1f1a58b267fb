package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
	"github.com/quillbooks/quillbooks/internal/syncclient"
)

// These tests drive the real HTTP client against the real router, so both
// sides of the sync wire format are exercised together instead of each side
// being checked against its own fake.

func newContractClient(t *testing.T, store *fakeSyncStore, gateStore *fakeLicenseStore, tenantID uuid.UUID) *syncclient.APIClient {
	t.Helper()
	srv := httptest.NewServer(newSyncRouter(t, store, gateStore, tenantID))
	t.Cleanup(srv.Close)
	c := syncclient.NewAPIClient(srv.URL, tenantID)
	c.SetToken("session-token")
	return c
}

func TestSyncWirePushRoundTrip(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeSyncStore{}
	gateStore := &fakeLicenseStore{tenant: trialTenant(tenantID, time.Now().Add(time.Hour))}
	c := newContractClient(t, store, gateStore, tenantID)

	resp, err := c.Push(context.Background(), testMutation(tenantID, 1))
	require.NoError(t, err, "client push body must bind on the server")
	assert.Equal(t, int64(1), resp.ServerSeq)
	require.Len(t, store.applied, 1)
	require.Len(t, store.applied[0], 1)
	assert.Equal(t, int64(1), store.applied[0][0].Seq)
}

func TestSyncWirePullAndState(t *testing.T) {
	tenantID := uuid.New()
	snap := models.NewSnapshot(tenantID)
	snap.ServerSeq = 8
	snap.NextSeq = 9
	store := &fakeSyncStore{snapshot: snap, nextSeq: 9, serverSeq: 8}
	gateStore := &fakeLicenseStore{tenant: trialTenant(tenantID, time.Now().Add(time.Hour))}
	c := newContractClient(t, store, gateStore, tenantID)

	got, err := c.PullFull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.ServerSeq)
	assert.Equal(t, int64(9), got.NextSeq)

	st, err := c.SyncState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), st.NextSeq)
	assert.Equal(t, int64(8), st.ServerSeq)
	assert.Equal(t, "trial", st.LicenseState)
	assert.True(t, st.MutationsAllowed)
}

func TestSyncWireConflictComesBackAsConflict(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeSyncStore{applyErr: qerrors.New(qerrors.KindConflict, "sequence mismatch: expected 2, got 5")}
	gateStore := &fakeLicenseStore{tenant: trialTenant(tenantID, time.Now().Add(time.Hour))}
	c := newContractClient(t, store, gateStore, tenantID)

	_, err := c.Push(context.Background(), testMutation(tenantID, 5))
	assert.Equal(t, qerrors.KindConflict, qerrors.KindOf(err))
	assert.Contains(t, err.Error(), "sequence mismatch")
}

func TestSyncWireExpiredTrialComesBackAsLicense(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeSyncStore{}
	gateStore := &fakeLicenseStore{tenant: trialTenant(tenantID, time.Now().Add(-time.Hour))}
	c := newContractClient(t, store, gateStore, tenantID)

	_, err := c.Push(context.Background(), testMutation(tenantID, 1))
	assert.Equal(t, qerrors.KindLicense, qerrors.KindOf(err))
	assert.Empty(t, store.applied)

	st, err := c.SyncState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "trial_expired", st.LicenseState)
	assert.False(t, st.MutationsAllowed)
}
