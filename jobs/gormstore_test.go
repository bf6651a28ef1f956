package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestGormstoreEnqueueIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store, err := NewGormstore(testDB(t))
	require.NoError(t, err)

	bucket := time.Now().UTC().Truncate(15 * time.Minute)
	job, created, err := store.EnqueueJob(ctx, KindMonitorAccount, "someuser", "", bucket)
	assert.NoError(err)
	assert.True(created)

	again, created, err := store.EnqueueJob(ctx, KindMonitorAccount, "someuser", "", bucket)
	assert.NoError(err)
	assert.False(created)
	assert.Equal(job.Key(), again.Key())

	_, err = store.GetJob(ctx, job.Key())
	assert.NoError(err)
	_, err = store.GetJob(ctx, "nope")
	assert.ErrorIs(err, ErrJobNotFound)
}

func TestGormstoreRecoversAfterRestart(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db := testDB(t)

	store, err := NewGormstore(db)
	require.NoError(err)

	bucket := time.Now().UTC().Truncate(15 * time.Minute)
	job, _, err := store.EnqueueJob(ctx, KindSendWarning, "detection/7", "7", bucket)
	require.NoError(err)

	// simulate a crash mid-flight
	require.NoError(job.SetState(ctx, StateInProgress))

	fresh, err := NewGormstore(db)
	require.NoError(err)
	require.NoError(fresh.LoadJobs(ctx))

	recovered, err := fresh.GetJob(ctx, job.Key())
	require.NoError(err)
	assert.Equal(StateEnqueued, recovered.State())
	assert.Equal("7", recovered.Payload())

	next, err := fresh.NextEnqueuedJob(ctx)
	require.NoError(err)
	require.NotNil(next)
	assert.Equal(job.Key(), next.Key())
}

func TestGormstoreRetryBackoffHoldsTargetOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	store, err := NewGormstore(testDB(t))
	require.NoError(err)

	bucket := time.Now().UTC().Truncate(15 * time.Minute)
	older, _, err := store.EnqueueJob(ctx, KindMonitorAccount, "promo_follow", "", bucket)
	require.NoError(err)
	require.NoError(older.SetState(ctx, StateInProgress))
	require.NoError(older.Retry(ctx, time.Now().Add(time.Hour)))

	// a younger job for the same target waits behind the backoff
	_, _, err = store.EnqueueJob(ctx, KindMonitorAccount, "promo_follow", "", bucket.Add(15*time.Minute))
	require.NoError(err)

	next, err := store.NextEnqueuedJob(ctx)
	require.NoError(err)
	assert.Nil(next)

	// other targets are unaffected
	other, _, err := store.EnqueueJob(ctx, KindMonitorAccount, "casual_hiker", "", bucket)
	require.NoError(err)
	next, err = store.NextEnqueuedJob(ctx)
	require.NoError(err)
	require.NotNil(next)
	assert.Equal(other.Key(), next.Key())
}

func TestGormstoreRetryStatePersists(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db := testDB(t)

	store, err := NewGormstore(db)
	require.NoError(err)

	bucket := time.Now().UTC().Truncate(15 * time.Minute)
	job, _, err := store.EnqueueJob(ctx, KindMonitorPost, "post123", "", bucket)
	require.NoError(err)

	require.NoError(job.Retry(ctx, time.Now().Add(time.Hour)))

	// not claimable until retry-after passes
	next, err := store.NextEnqueuedJob(ctx)
	assert.NoError(err)
	assert.Nil(next)

	fresh, err := NewGormstore(db)
	require.NoError(err)
	require.NoError(fresh.LoadJobs(ctx))
	recovered, err := fresh.GetJob(ctx, job.Key())
	require.NoError(err)
	assert.Equal(1, recovered.RetryCount())
}
