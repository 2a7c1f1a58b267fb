package syncclient

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/models"
)

func newTestQueue(t *testing.T) *SQLiteQueue {
	t.Helper()
	q, err := NewSQLiteQueue(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func queuedMutation(t *testing.T, q *SQLiteQueue, tenantID uuid.UUID) *models.Mutation {
	t.Helper()
	ctx := context.Background()
	seq, err := q.NextSeq(ctx, tenantID)
	require.NoError(t, err)
	mut := &models.Mutation{
		ID:       uuid.New(),
		TenantID: tenantID,
		Seq:      seq,
		Table:    models.TableInvoices,
		Op:       models.OpCreate,
		RecordID: uuid.New(),
		Payload:  []byte(`{"total":"10.00"}`),
	}
	require.NoError(t, q.Enqueue(ctx, mut))
	return mut
}

func TestQueueSequenceIsMonotonicPerTenant(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	a, b := uuid.New(), uuid.New()

	for want := int64(1); want <= 3; want++ {
		seq, err := q.NextSeq(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	// Another tenant starts its own counter.
	seq, err := q.NextSeq(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestQueueResetSeq(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	tenantID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := q.NextSeq(ctx, tenantID)
		require.NoError(t, err)
	}

	require.NoError(t, q.ResetSeq(ctx, tenantID, 2))
	seq, err := q.NextSeq(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq, "counter restarts at the server cursor")
	seq, err = q.NextSeq(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)

	// Resetting an untouched tenant seeds its counter.
	fresh := uuid.New()
	require.NoError(t, q.ResetSeq(ctx, fresh, 7))
	seq, err = q.NextSeq(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestQueueReusesSeqOfRejectedMutation(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	tenantID := uuid.New()

	stale := queuedMutation(t, q, tenantID)
	require.NoError(t, q.MarkStatus(ctx, stale.ID, StatusRejected, 1, "discarded after resync"))
	require.NoError(t, q.ResetSeq(ctx, tenantID, stale.Seq))

	// The rejected row keeps its history without blocking the realigned
	// counter from handing out the same sequence number again.
	replay := queuedMutation(t, q, tenantID)
	assert.Equal(t, stale.Seq, replay.Seq)

	pending, err := q.ListPending(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, replay.ID, pending[0].Mutation.ID)
}

func TestQueueListPendingOrderedBySeq(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	tenantID := uuid.New()

	first := queuedMutation(t, q, tenantID)
	second := queuedMutation(t, q, tenantID)
	third := queuedMutation(t, q, tenantID)

	pending, err := q.ListPending(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, first.ID, pending[0].Mutation.ID)
	assert.Equal(t, second.ID, pending[1].Mutation.ID)
	assert.Equal(t, third.ID, pending[2].Mutation.ID)

	count, err := q.PendingCount(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestQueueRemoveAndMarkStatus(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	tenantID := uuid.New()

	mut := queuedMutation(t, q, tenantID)
	other := queuedMutation(t, q, tenantID)

	require.NoError(t, q.Remove(ctx, mut.ID))
	require.NoError(t, q.MarkStatus(ctx, other.ID, StatusRejected, 1, "sequence mismatch"))

	pending, err := q.ListPending(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, pending, "removed and rejected mutations are no longer pending")
}

func TestQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tenantID := uuid.New()

	q, err := NewSQLiteQueue(dir, zerolog.Nop())
	require.NoError(t, err)
	mut := queuedMutation(t, q, tenantID)
	require.NoError(t, q.Close())

	q2, err := NewSQLiteQueue(dir, zerolog.Nop())
	require.NoError(t, err)
	defer q2.Close()

	pending, err := q2.ListPending(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, mut.ID, pending[0].Mutation.ID)
	assert.Equal(t, mut.Seq, pending[0].Mutation.Seq)

	// The counter carries on where it left off.
	seq, err := q2.NextSeq(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, mut.Seq+1, seq)
}

func TestQueueClear(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	tenantID := uuid.New()

	queuedMutation(t, q, tenantID)
	queuedMutation(t, q, tenantID)
	require.NoError(t, q.Clear(ctx, tenantID))

	count, err := q.PendingCount(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
