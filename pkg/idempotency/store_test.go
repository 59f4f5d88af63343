package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/wms-platform/cfs-destuffing-service/pkg/testing"
)

func newRecord(key, token string, lockedAt time.Time) *Record {
	return &Record{
		Key:           key,
		ServiceID:     "svc",
		RequestPath:   "/api/v1/plans/P1/containers/C1/complete",
		RequestMethod: "POST",
		Fingerprint:   "fp",
		LockToken:     token,
		LockedAt:      lockedAt,
		CreatedAt:     lockedAt,
		ExpiresAt:     lockedAt.Add(DefaultRetentionPeriod),
	}
}

func TestMongoStore(t *testing.T) {
	db := testhelpers.SetupMongo(t, "idempotency_test")
	ctx := context.Background()
	store := NewMongoStore(db)
	require.NoError(t, store.EnsureIndexes(ctx))

	now := time.Now().UTC()
	staleBefore := now.Add(-DefaultLockTimeout)

	first, acquired, err := store.Acquire(ctx, newRecord("k1", "t1", now), staleBefore)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.False(t, first.ID.IsZero())

	_, acquired, err = store.Acquire(ctx, newRecord("k1", "t2", now), staleBefore)
	require.NoError(t, err)
	assert.False(t, acquired, "held lock must not be granted twice")

	require.NoError(t, store.Complete(ctx, first, 201, []byte(`{"ok":true}`), map[string]string{"X-A": "b"}))
	replay, acquired, err := store.Acquire(ctx, newRecord("k1", "t3", now), staleBefore)
	require.NoError(t, err)
	assert.False(t, acquired)
	require.True(t, replay.IsCompleted())
	assert.Equal(t, 201, replay.ResponseCode)
	assert.JSONEq(t, `{"ok":true}`, string(replay.ResponseBody))
	assert.Equal(t, "b", replay.ResponseHeaders["X-A"])

	// released keys can be acquired again
	second, acquired, err := store.Acquire(ctx, newRecord("k2", "t1", now), staleBefore)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, store.Release(ctx, second))
	_, acquired, err = store.Acquire(ctx, newRecord("k2", "t2", now), staleBefore)
	require.NoError(t, err)
	assert.True(t, acquired)

	// stale locks are taken over
	old := now.Add(-time.Hour)
	_, acquired, err = store.Acquire(ctx, newRecord("k3", "crashed", old), staleBefore)
	require.NoError(t, err)
	require.True(t, acquired)
	claimed, acquired, err := store.Acquire(ctx, newRecord("k3", "fresh", now), staleBefore)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, "fresh", claimed.LockToken)
}
