// Package jobs provides the persistent work queue that drives account and
// post monitoring and warning delivery. Jobs are idempotent per
// (kind, target, time bucket): re-enqueueing the same work inside one bucket
// is a no-op, so overlapping scheduler ticks and manual triggers cannot fan
// out duplicate evaluations.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sift-social/sift/detection/texttools"
)

// Job kinds.
const (
	// KindMonitorAccount fetches an account's recent activity and scores it.
	KindMonitorAccount = "monitor-account"
	// KindMonitorPost fetches a post's comments and runs per-commenter and
	// coordination analysis.
	KindMonitorPost = "monitor-post"
	// KindSendWarning delivers the warning reply for an approved detection.
	KindSendWarning = "send-warning"
)

var (
	// StateEnqueued is the state of a job when it is created or scheduled for
	// retry.
	StateEnqueued = "enqueued"
	// StateInProgress is the state of a job while a worker holds it.
	StateInProgress = "in_progress"
	// StateComplete is the state of a job that finished successfully.
	StateComplete = "complete"
	// StateFailed is the state of a job that exhausted its retries or hit a
	// permanent error.
	StateFailed = "failed"
)

// ErrJobNotFound is returned when looking up a job key that was never enqueued.
var ErrJobNotFound = errors.New("job not found")

// Job is one unit of queued work.
type Job interface {
	Key() string
	Kind() string
	Target() string
	Payload() string
	State() string
	SetState(ctx context.Context, state string) error
	RetryCount() int
	// Retry re-enqueues the job, not to be claimed before the given time.
	Retry(ctx context.Context, after time.Time) error
	CreatedAt() time.Time
}

// Store holds Jobs. Implementations must make EnqueueJob idempotent per key.
type Store interface {
	// EnqueueJob creates the job for (kind, target, bucket) if absent. The
	// bool reports whether a new job was created; when false the existing
	// job is returned.
	EnqueueJob(ctx context.Context, kind, target, payload string, bucket time.Time) (Job, bool, error)
	GetJob(ctx context.Context, key string) (Job, error)
	// NextEnqueuedJob returns the oldest claimable job: enqueued, past its
	// retry-after time, and with no in-progress job on the same target. Two
	// workers never touch one target at once. Returns nil when the queue is
	// drained.
	NextEnqueuedJob(ctx context.Context) (Job, error)
	ListFailed(ctx context.Context) ([]Job, error)
}

// JobKey derives the idempotency key for (kind, target, bucket).
func JobKey(kind, target string, bucket time.Time) string {
	return texttools.HashOfString(fmt.Sprintf("%s/%s/%d", kind, target, bucket.UTC().Unix()))
}
