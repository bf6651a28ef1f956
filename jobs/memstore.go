package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Memjob struct {
	key     string
	kind    string
	target  string
	payload string

	lk         sync.Mutex
	state      string
	retryCount int
	retryAfter *time.Time

	createdAt time.Time
	updatedAt time.Time
}

// Memstore is a simple in-memory implementation of the job Store interface,
// for tests and single-process runs without a database.
type Memstore struct {
	lk   sync.RWMutex
	jobs map[string]*Memjob
}

func NewMemstore() *Memstore {
	return &Memstore{
		jobs: make(map[string]*Memjob),
	}
}

func (s *Memstore) EnqueueJob(ctx context.Context, kind, target, payload string, bucket time.Time) (Job, bool, error) {
	key := JobKey(kind, target, bucket)

	s.lk.Lock()
	defer s.lk.Unlock()

	if j, ok := s.jobs[key]; ok {
		return j, false, nil
	}

	j := &Memjob{
		key:       key,
		kind:      kind,
		target:    target,
		payload:   payload,
		state:     StateEnqueued,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	s.jobs[key] = j
	return j, true, nil
}

func (s *Memstore) GetJob(ctx context.Context, key string) (Job, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	j, ok := s.jobs[key]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

func (s *Memstore) NextEnqueuedJob(ctx context.Context) (Job, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	// jobs for one target run in submission order: a target is handed out
	// only at its oldest unfinished job, and never while one is in flight.
	// An older job sitting in retry backoff holds back younger ones.
	busy := make(map[string]bool)
	oldest := make(map[string]*Memjob)
	for _, j := range s.jobs {
		switch j.State() {
		case StateInProgress:
			busy[j.target] = true
		case StateEnqueued:
		default:
			continue
		}
		if cur, ok := oldest[j.target]; !ok || j.createdAt.Before(cur.createdAt) ||
			(j.createdAt.Equal(cur.createdAt) && j.key < cur.key) {
			oldest[j.target] = j
		}
	}

	now := time.Now()
	var next *Memjob
	for _, j := range s.jobs {
		if busy[j.target] || oldest[j.target] != j || !j.claimable(now) {
			continue
		}
		if next == nil || j.createdAt.Before(next.createdAt) ||
			(j.createdAt.Equal(next.createdAt) && j.key < next.key) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	return next, nil
}

func (s *Memstore) ListFailed(ctx context.Context) ([]Job, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	var failed []Job
	for _, j := range s.jobs {
		if j.State() == StateFailed {
			failed = append(failed, j)
		}
	}
	sort.Slice(failed, func(i, k int) bool {
		return failed[i].CreatedAt().Before(failed[k].CreatedAt())
	})
	return failed, nil
}

func (j *Memjob) claimable(now time.Time) bool {
	j.lk.Lock()
	defer j.lk.Unlock()
	if j.state != StateEnqueued {
		return false
	}
	return j.retryAfter == nil || now.After(*j.retryAfter)
}

func (j *Memjob) Key() string     { return j.key }
func (j *Memjob) Kind() string    { return j.kind }
func (j *Memjob) Target() string  { return j.target }
func (j *Memjob) Payload() string { return j.payload }

func (j *Memjob) State() string {
	j.lk.Lock()
	defer j.lk.Unlock()
	return j.state
}

func (j *Memjob) SetState(ctx context.Context, state string) error {
	j.lk.Lock()
	defer j.lk.Unlock()
	j.state = state
	j.updatedAt = time.Now()
	return nil
}

func (j *Memjob) RetryCount() int {
	j.lk.Lock()
	defer j.lk.Unlock()
	return j.retryCount
}

func (j *Memjob) Retry(ctx context.Context, after time.Time) error {
	j.lk.Lock()
	defer j.lk.Unlock()
	j.retryCount++
	j.retryAfter = &after
	j.state = StateEnqueued
	j.updatedAt = time.Now()
	return nil
}

func (j *Memjob) CreatedAt() time.Time { return j.createdAt }
