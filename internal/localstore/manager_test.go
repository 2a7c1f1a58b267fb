package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// brokenBackend fails every operation, standing in for a corrupted tier.
type brokenBackend struct{}

func (brokenBackend) Name() string { return "broken" }
func (brokenBackend) TryLoad(context.Context, string) ([]byte, error) {
	return nil, errors.New("tier unavailable")
}
func (brokenBackend) TryPersist(context.Context, string, []byte) error {
	return errors.New("tier unavailable")
}
func (brokenBackend) TryClear(context.Context, string) error { return errors.New("tier unavailable") }
func (brokenBackend) Close() error                           { return nil }

func newTestManager(t *testing.T, tenantID uuid.UUID, backends ...Backend) *Manager {
	t.Helper()
	if len(backends) == 0 {
		fb, err := NewFileBackend(t.TempDir(), zerolog.Nop())
		require.NoError(t, err)
		backends = []Backend{fb}
	}
	m := NewManager(tenantID, backends, zerolog.Nop())
	t.Cleanup(func() { m.Close() })
	return m
}

func testSnapshot(tenantID uuid.UUID, serverSeq int64) *models.Snapshot {
	snap := models.NewSnapshot(tenantID)
	snap.ServerSeq = serverSeq
	snap.SyncedAt = time.Now().UTC()
	return snap
}

func TestManagerLoadNotFound(t *testing.T) {
	m := newTestManager(t, uuid.New())
	err := m.Load(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.False(t, m.Loaded())
}

func TestManagerReplaceSurvivesReload(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	fb, err := NewFileBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	m := NewManager(tenantID, []Backend{fb}, zerolog.Nop())
	snap := testSnapshot(tenantID, 7)
	recordID := uuid.New()
	snap.Rows(models.TableContacts)[recordID] = []byte(`{"name":"Ada"}`)
	require.NoError(t, m.Replace(ctx, snap))

	// A second manager over the same tier sees the persisted bytes.
	m2 := NewManager(tenantID, []Backend{fb}, zerolog.Nop())
	require.NoError(t, m2.Load(ctx))
	assert.Equal(t, int64(7), m2.ServerSeq())
	assert.Equal(t, 1, m2.RowCount(models.TableContacts))
	m2.Close()
}

func TestManagerReplaceRejectsWrongTenant(t *testing.T) {
	m := newTestManager(t, uuid.New())
	err := m.Replace(context.Background(), testSnapshot(uuid.New(), 1))
	assert.Equal(t, qerrors.KindValidation, qerrors.KindOf(err))
}

func TestManagerFallsBackToSecondTier(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	fb, err := NewFileBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, fb.TryPersist(ctx, tenantID.String(), mustEncode(t, testSnapshot(tenantID, 3))))

	m := NewManager(tenantID, []Backend{brokenBackend{}, fb}, zerolog.Nop())
	require.NoError(t, m.Load(ctx))
	assert.Equal(t, int64(3), m.ServerSeq())

	// Persist also skips the broken primary without losing the write.
	require.NoError(t, m.Replace(ctx, testSnapshot(tenantID, 4)))
	data, err := fb.TryLoad(ctx, tenantID.String())
	require.NoError(t, err)
	got, err := models.DecodeSnapshot(data, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.ServerSeq)
	m.Close()
}

func TestManagerApplyMutations(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	m := newTestManager(t, tenantID)
	require.NoError(t, m.Replace(ctx, testSnapshot(tenantID, 1)))

	recordID := uuid.New()
	create := &models.Mutation{
		ID:       uuid.New(),
		TenantID: tenantID,
		Table:    models.TableInvoices,
		Op:       models.OpCreate,
		RecordID: recordID,
		Payload:  []byte(`{"total":"10.00"}`),
	}
	require.NoError(t, m.Apply(ctx, create))
	assert.Equal(t, 1, m.RowCount(models.TableInvoices))

	update := *create
	update.Op = models.OpUpdate
	update.Payload = []byte(`{"total":"12.50"}`)
	require.NoError(t, m.Apply(ctx, &update))
	payload, ok := m.GetRecord(models.TableInvoices, recordID)
	require.True(t, ok)
	assert.JSONEq(t, `{"total":"12.50"}`, string(payload))

	del := *create
	del.Op = models.OpDelete
	del.Payload = nil
	require.NoError(t, m.Apply(ctx, &del))
	assert.Equal(t, 0, m.RowCount(models.TableInvoices))
}

func TestManagerApplyWithoutSnapshot(t *testing.T) {
	tenantID := uuid.New()
	m := newTestManager(t, tenantID)
	err := m.Apply(context.Background(), &models.Mutation{
		TenantID: tenantID,
		Table:    models.TableInvoices,
		Op:       models.OpCreate,
		RecordID: uuid.New(),
		Payload:  []byte(`{}`),
	})
	assert.Equal(t, qerrors.KindStorage, qerrors.KindOf(err))
}

func TestManagerApplyRollsBackOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	fb, err := NewFileBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	m := NewManager(tenantID, []Backend{fb}, zerolog.Nop())
	require.NoError(t, m.Replace(ctx, testSnapshot(tenantID, 1)))

	// Swap in a broken tier so the next persist fails.
	m.backends = []Backend{brokenBackend{}}
	err = m.Apply(ctx, &models.Mutation{
		ID:       uuid.New(),
		TenantID: tenantID,
		Table:    models.TableInvoices,
		Op:       models.OpCreate,
		RecordID: uuid.New(),
		Payload:  []byte(`{"total":"10.00"}`),
	})
	assert.Equal(t, qerrors.KindStorage, qerrors.KindOf(err))
	assert.Equal(t, 0, m.RowCount(models.TableInvoices), "failed persist must not leave the row in memory")
}

func TestManagerClearTables(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	m := newTestManager(t, tenantID)

	snap := testSnapshot(tenantID, 5)
	snap.Rows(models.TableTransactions)[uuid.New()] = []byte(`{"amount":"1.00"}`)
	snap.Rows(models.TableContacts)[uuid.New()] = []byte(`{"name":"Ada"}`)
	acct := models.Account{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     "Operating",
		Currency: "USD",
		Balance:  decimal.RequireFromString("125.50"),
	}
	acctJSON, err := json.Marshal(&acct)
	require.NoError(t, err)
	snap.Rows(models.TableAccounts)[acct.ID] = acctJSON
	require.NoError(t, m.Replace(ctx, snap))

	require.NoError(t, m.ClearTables(ctx, models.TransactionalTables()))

	assert.Equal(t, 0, m.RowCount(models.TableTransactions))
	assert.Equal(t, 1, m.RowCount(models.TableContacts), "master data survives")

	payload, ok := m.GetRecord(models.TableAccounts, acct.ID)
	require.True(t, ok)
	var got models.Account
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.True(t, got.Balance.IsZero(), "account balances reset to zero")
	assert.Equal(t, "Operating", got.Name)
}

func TestManagerClear(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	m := newTestManager(t, tenantID)
	require.NoError(t, m.Replace(ctx, testSnapshot(tenantID, 1)))

	require.NoError(t, m.Clear(ctx))
	assert.False(t, m.Loaded())
	assert.ErrorIs(t, m.Load(ctx), ErrSnapshotNotFound)
}

func mustEncode(t *testing.T, snap *models.Snapshot) []byte {
	t.Helper()
	data, err := snap.Encode()
	require.NoError(t, err)
	return data
}
