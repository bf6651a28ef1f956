package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sift-social/sift/platform"
)

func testOrchestrator(t *testing.T, store Store) *Orchestrator {
	t.Helper()
	opts := DefaultOrchestratorOptions()
	opts.PollInterval = 5 * time.Millisecond
	o := NewOrchestrator("test", store, rate.NewLimiter(rate.Inf, 0), opts)
	o.Backoff = func(attempt int) time.Duration { return 0 }
	return o
}

func startOrchestrator(t *testing.T, o *Orchestrator) {
	t.Helper()
	go o.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, o.Stop(ctx))
	})
}

func TestEnqueueIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	o := testOrchestrator(t, NewMemstore())

	job, created, err := o.Enqueue(ctx, KindMonitorAccount, "suspicious_user", "")
	assert.NoError(err)
	assert.True(created)

	// second enqueue in the same bucket is a no-op
	again, created, err := o.Enqueue(ctx, KindMonitorAccount, "suspicious_user", "")
	assert.NoError(err)
	assert.False(created)
	assert.Equal(job.Key(), again.Key())

	// a different bucket is new work
	_, created, err = o.EnqueueAt(ctx, KindMonitorAccount, "suspicious_user", "", time.Now().Add(time.Hour))
	assert.NoError(err)
	assert.True(created)
}

func TestJobCompletes(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	o := testOrchestrator(t, NewMemstore())

	var handled atomic.Int32
	o.HandleFunc(KindMonitorAccount, func(ctx context.Context, job Job) error {
		handled.Add(1)
		return nil
	})
	startOrchestrator(t, o)

	job, _, err := o.Enqueue(ctx, KindMonitorAccount, "someuser", "")
	require.NoError(err)

	require.Eventually(func() bool {
		return job.State() == StateComplete
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(int32(1), handled.Load())
}

func TestTransientErrorRetried(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	o := testOrchestrator(t, NewMemstore())

	var attempts atomic.Int32
	o.HandleFunc(KindMonitorAccount, func(ctx context.Context, job Job) error {
		if attempts.Add(1) < 3 {
			return platform.Transient("fetch-activity", errors.New("connection reset"))
		}
		return nil
	})
	startOrchestrator(t, o)

	job, _, err := o.Enqueue(ctx, KindMonitorAccount, "flaky", "")
	require.NoError(err)

	require.Eventually(func() bool {
		return job.State() == StateComplete
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(int32(3), attempts.Load())
	assert.Equal(2, job.RetryCount())
}

func TestTransientErrorExhaustsRetries(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := NewMemstore()
	o := testOrchestrator(t, store)

	var attempts atomic.Int32
	o.HandleFunc(KindMonitorAccount, func(ctx context.Context, job Job) error {
		attempts.Add(1)
		return platform.Transient("fetch-activity", errors.New("still down"))
	})
	startOrchestrator(t, o)

	job, _, err := o.Enqueue(ctx, KindMonitorAccount, "downuser", "")
	require.NoError(err)

	require.Eventually(func() bool {
		return job.State() == StateFailed
	}, 5*time.Second, 10*time.Millisecond)
	// initial attempt plus MaxRetries retries
	assert.Equal(int32(3), attempts.Load())

	failed, err := store.ListFailed(ctx)
	assert.NoError(err)
	require.Len(failed, 1)
	assert.Equal(job.Key(), failed[0].Key())
}

func TestPermanentErrorFailsImmediately(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	o := testOrchestrator(t, NewMemstore())

	var attempts atomic.Int32
	o.HandleFunc(KindMonitorAccount, func(ctx context.Context, job Job) error {
		attempts.Add(1)
		return platform.Permanent("fetch-activity", platform.ErrNotFound)
	})
	startOrchestrator(t, o)

	job, _, err := o.Enqueue(ctx, KindMonitorAccount, "deleted_user", "")
	require.NoError(err)

	require.Eventually(func() bool {
		return job.State() == StateFailed
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(int32(1), attempts.Load())
	assert.Equal(0, job.RetryCount())
}

func TestSameTargetNeverRunsConcurrently(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	o := testOrchestrator(t, NewMemstore())
	o.Parallel = 4

	release := make(chan struct{})
	var mu sync.Mutex
	started := []string{}
	o.HandleFunc(KindMonitorAccount, func(ctx context.Context, job Job) error {
		mu.Lock()
		started = append(started, job.Kind())
		mu.Unlock()
		<-release
		return nil
	})
	o.HandleFunc(KindMonitorPost, func(ctx context.Context, job Job) error {
		mu.Lock()
		started = append(started, job.Kind())
		mu.Unlock()
		return nil
	})
	startOrchestrator(t, o)

	first, _, err := o.Enqueue(ctx, KindMonitorAccount, "contested", "")
	require.NoError(err)
	second, _, err := o.Enqueue(ctx, KindMonitorPost, "contested", "")
	require.NoError(err)

	require.Eventually(func() bool {
		return first.State() == StateInProgress
	}, 5*time.Second, 10*time.Millisecond)

	// the second job shares the target and must wait for the first
	time.Sleep(50 * time.Millisecond)
	assert.Equal(StateEnqueued, second.State())
	mu.Lock()
	assert.Equal([]string{KindMonitorAccount}, started)
	mu.Unlock()

	close(release)
	require.Eventually(func() bool {
		return first.State() == StateComplete && second.State() == StateComplete
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRetryBackoffHoldsTargetOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := NewMemstore()

	bucket := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	older, created, err := store.EnqueueJob(ctx, KindMonitorAccount, "promo_follow", "", bucket)
	require.NoError(err)
	require.True(created)

	// older job hits a transient failure and backs off for an hour
	require.NoError(older.SetState(ctx, StateInProgress))
	require.NoError(older.Retry(ctx, time.Now().Add(time.Hour)))

	// next bucket's job for the same target arrives meanwhile
	_, created, err = store.EnqueueJob(ctx, KindMonitorAccount, "promo_follow", "", bucket.Add(15*time.Minute))
	require.NoError(err)
	require.True(created)

	// the younger job must not jump the queue while the older one waits
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

	// once the backoff passes, the older job goes first
	require.NoError(other.SetState(ctx, StateInProgress))
	require.NoError(older.Retry(ctx, time.Now().Add(-time.Second)))
	next, err = store.NextEnqueuedJob(ctx)
	require.NoError(err)
	require.NotNil(next)
	assert.Equal(older.Key(), next.Key())
}

func TestUnknownKindFails(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	o := testOrchestrator(t, NewMemstore())
	startOrchestrator(t, o)

	job, _, err := o.Enqueue(ctx, "no-such-kind", "x", "")
	require.NoError(err)

	require.Eventually(func() bool {
		return job.State() == StateFailed
	}, 5*time.Second, 10*time.Millisecond)
}
