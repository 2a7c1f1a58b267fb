package localstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewSQLiteBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	tenant := uuid.New().String()

	_, err = b.TryLoad(ctx, tenant)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, b.TryPersist(ctx, tenant, []byte(`{"version":1}`)))
	data, err := b.TryLoad(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))

	// Persist replaces, not appends.
	require.NoError(t, b.TryPersist(ctx, tenant, []byte(`{"version":1,"server_seq":2}`)))
	data, err = b.TryLoad(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1,"server_seq":2}`, string(data))

	require.NoError(t, b.TryClear(ctx, tenant))
	_, err = b.TryLoad(ctx, tenant)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFileBackendIsolatesTenants(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	a, c := uuid.New().String(), uuid.New().String()
	require.NoError(t, b.TryPersist(ctx, a, []byte("alpha")))
	require.NoError(t, b.TryPersist(ctx, c, []byte("gamma")))

	got, err := b.TryLoad(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	require.NoError(t, b.TryClear(ctx, a))
	_, err = b.TryLoad(ctx, a)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	got, err = b.TryLoad(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "gamma", string(got))
}
