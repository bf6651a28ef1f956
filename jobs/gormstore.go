package jobs

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Gormjob struct {
	key     string
	kind    string
	target  string
	payload string

	lk         sync.Mutex
	state      string
	retryCount int
	retryAfter *time.Time

	dbj *GormDBJob
	db  *gorm.DB

	createdAt time.Time
	updatedAt time.Time
}

type GormDBJob struct {
	gorm.Model
	Key        string `gorm:"uniqueIndex"`
	Kind       string `gorm:"index"`
	Target     string `gorm:"index"`
	Payload    string
	State      string `gorm:"index"`
	RetryCount int
	RetryAfter *time.Time
}

// Gormstore is a gorm-backed implementation of the job Store interface. Jobs
// are persisted so the queue survives restarts; an in-memory map of live jobs
// fronts the table.
type Gormstore struct {
	lk   sync.RWMutex
	jobs map[string]*Gormjob
	db   *gorm.DB
}

func NewGormstore(db *gorm.DB) (*Gormstore, error) {
	if err := db.AutoMigrate(&GormDBJob{}); err != nil {
		return nil, err
	}
	return &Gormstore{
		jobs: make(map[string]*Gormjob),
		db:   db,
	}, nil
}

// LoadJobs pulls unfinished jobs from the database into the in-memory map.
// Jobs stranded in_progress by a crash are reset to enqueued so they get
// picked up again.
func (s *Gormstore) LoadJobs(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Model(&GormDBJob{}).
		Where("state = ?", StateInProgress).
		Update("state", StateEnqueued).Error; err != nil {
		return err
	}

	s.lk.Lock()
	defer s.lk.Unlock()

	limit := 20_000
	offset := 0
	for {
		var dbjobs []*GormDBJob
		if err := s.db.WithContext(ctx).
			Where("state IN ?", []string{StateEnqueued, StateFailed}).
			Limit(limit).Offset(offset).Find(&dbjobs).Error; err != nil {
			return err
		}
		if len(dbjobs) == 0 {
			break
		}
		offset += len(dbjobs)

		for i := range dbjobs {
			dbj := dbjobs[i]
			s.jobs[dbj.Key] = s.hydrate(dbj)
		}
	}

	return nil
}

func (s *Gormstore) hydrate(dbj *GormDBJob) *Gormjob {
	return &Gormjob{
		key:     dbj.Key,
		kind:    dbj.Kind,
		target:  dbj.Target,
		payload: dbj.Payload,
		state:   dbj.State,

		dbj: dbj,
		db:  s.db,

		retryCount: dbj.RetryCount,
		retryAfter: dbj.RetryAfter,

		createdAt: dbj.CreatedAt,
		updatedAt: dbj.UpdatedAt,
	}
}

func (s *Gormstore) EnqueueJob(ctx context.Context, kind, target, payload string, bucket time.Time) (Job, bool, error) {
	key := JobKey(kind, target, bucket)

	s.lk.Lock()
	defer s.lk.Unlock()

	if j, ok := s.jobs[key]; ok {
		return j, false, nil
	}

	dbj := &GormDBJob{
		Key:     key,
		Kind:    kind,
		Target:  target,
		Payload: payload,
		State:   StateEnqueued,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(dbj)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// present in the database but not the map: load it
		j, err := s.loadJobLocked(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return j, false, nil
	}

	j := s.hydrate(dbj)
	j.createdAt = time.Now()
	j.updatedAt = time.Now()
	s.jobs[key] = j
	return j, true, nil
}

func (s *Gormstore) GetJob(ctx context.Context, key string) (Job, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	if j, ok := s.jobs[key]; ok {
		return j, nil
	}
	return s.loadJobLocked(ctx, key)
}

func (s *Gormstore) loadJobLocked(ctx context.Context, key string) (*Gormjob, error) {
	var dbj GormDBJob
	if err := s.db.WithContext(ctx).Find(&dbj, "key = ?", key).Error; err != nil {
		return nil, err
	}
	if dbj.ID == 0 {
		return nil, ErrJobNotFound
	}

	j := s.hydrate(&dbj)
	s.jobs[key] = j
	return j, nil
}

func (s *Gormstore) NextEnqueuedJob(ctx context.Context) (Job, error) {
	// a write lock: jobs enqueued by other processes on the same database get
	// hydrated into the map here
	s.lk.Lock()
	defer s.lk.Unlock()

	if err := s.syncEnqueuedLocked(ctx); err != nil {
		return nil, err
	}

	// jobs for one target run in submission order: a target is handed out
	// only at its oldest unfinished job, and never while one is in flight.
	// An older job sitting in retry backoff holds back younger ones.
	busy := make(map[string]bool)
	oldest := make(map[string]*Gormjob)
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
	var next *Gormjob
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

// syncEnqueuedLocked pulls enqueued rows the map has not seen yet, so work
// written by another process (the operator CLI) is picked up.
func (s *Gormstore) syncEnqueuedLocked(ctx context.Context) error {
	var dbjobs []*GormDBJob
	if err := s.db.WithContext(ctx).
		Where("state = ?", StateEnqueued).
		Order("created_at").Limit(100).
		Find(&dbjobs).Error; err != nil {
		return err
	}
	for i := range dbjobs {
		dbj := dbjobs[i]
		if _, ok := s.jobs[dbj.Key]; ok {
			continue
		}
		s.jobs[dbj.Key] = s.hydrate(dbj)
	}
	return nil
}

// ListFailed reads from the database rather than the map, so failures
// recorded by another process are visible too.
func (s *Gormstore) ListFailed(ctx context.Context) ([]Job, error) {
	var dbjobs []*GormDBJob
	if err := s.db.WithContext(ctx).
		Where("state = ?", StateFailed).
		Order("created_at").
		Find(&dbjobs).Error; err != nil {
		return nil, err
	}

	s.lk.Lock()
	defer s.lk.Unlock()

	failed := make([]Job, 0, len(dbjobs))
	for i := range dbjobs {
		dbj := dbjobs[i]
		if j, ok := s.jobs[dbj.Key]; ok {
			failed = append(failed, j)
			continue
		}
		j := s.hydrate(dbj)
		s.jobs[dbj.Key] = j
		failed = append(failed, j)
	}
	return failed, nil
}

func (j *Gormjob) claimable(now time.Time) bool {
	j.lk.Lock()
	defer j.lk.Unlock()
	if j.state != StateEnqueued {
		return false
	}
	return j.retryAfter == nil || now.After(*j.retryAfter)
}

func (j *Gormjob) Key() string     { return j.key }
func (j *Gormjob) Kind() string    { return j.kind }
func (j *Gormjob) Target() string  { return j.target }
func (j *Gormjob) Payload() string { return j.payload }

func (j *Gormjob) State() string {
	j.lk.Lock()
	defer j.lk.Unlock()
	return j.state
}

func (j *Gormjob) SetState(ctx context.Context, state string) error {
	j.lk.Lock()
	defer j.lk.Unlock()

	j.state = state
	j.updatedAt = time.Now()

	j.dbj.State = state
	return j.db.WithContext(ctx).Save(j.dbj).Error
}

func (j *Gormjob) RetryCount() int {
	j.lk.Lock()
	defer j.lk.Unlock()
	return j.retryCount
}

func (j *Gormjob) Retry(ctx context.Context, after time.Time) error {
	j.lk.Lock()
	defer j.lk.Unlock()

	j.retryCount++
	j.retryAfter = &after
	j.state = StateEnqueued
	j.updatedAt = time.Now()

	j.dbj.RetryCount = j.retryCount
	j.dbj.RetryAfter = &after
	j.dbj.State = StateEnqueued
	return j.db.WithContext(ctx).Save(j.dbj).Error
}

func (j *Gormjob) CreatedAt() time.Time { return j.createdAt }
