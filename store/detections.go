package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sift-social/sift/models"
)

func (s *Store) targetLock(kind, target string) *sync.Mutex {
	mu, _ := s.targetLocks.LoadOrCompute(kind+"/"+target, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	return mu
}

// RecordDetection creates a pending detection if and only if the composite
// score meets the configured threshold. Creation is idempotent per
// (kind, target): while an open detection (pending, or approved but not yet
// actioned) exists for the same target, it is returned instead of a
// duplicate. The bool reports whether a new record was created.
func (s *Store) RecordDetection(ctx context.Context, kind, target string, score float64, ev *models.Evidence, postID, commentID string) (*models.Detection, bool, error) {
	if score < s.minScore {
		return nil, false, nil
	}

	mu := s.targetLock(kind, target)
	mu.Lock()
	defer mu.Unlock()

	var existing models.Detection
	err := s.db.WithContext(ctx).
		Where("kind = ? AND target = ? AND state IN ?", kind, target,
			[]string{models.DetectionPending, models.DetectionApproved}).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	evidence := ""
	if ev != nil {
		evidence, err = ev.Marshal()
		if err != nil {
			return nil, false, fmt.Errorf("marshaling evidence: %w", err)
		}
	}
	det := models.Detection{
		Kind:           kind,
		Target:         target,
		State:          models.DetectionPending,
		CompositeScore: score,
		Evidence:       evidence,
		PostID:         postID,
		CommentID:      commentID,
	}
	if err := s.db.WithContext(ctx).Create(&det).Error; err != nil {
		return nil, false, err
	}
	s.logger.Info("detection recorded", "kind", kind, "target", target, "score", score, "id", det.ID)
	return &det, true, nil
}

func (s *Store) GetDetection(ctx context.Context, id uint) (*models.Detection, error) {
	var det models.Detection
	err := s.db.WithContext(ctx).First(&det, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: detection %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &det, nil
}

// transition moves a detection from one state to another with an optimistic
// guard: the UPDATE only applies while the row is still in the expected state,
// so concurrent transitions cannot corrupt the machine.
func (s *Store) transition(ctx context.Context, id uint, from, to string, decided bool) (*models.Detection, error) {
	updates := map[string]any{"state": to}
	if decided {
		now := time.Now()
		updates["decided_at"] = &now
	}
	res := s.db.WithContext(ctx).Model(&models.Detection{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		det, err := s.GetDetection(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: detection %d is %s, not %s", ErrInvalidState, id, det.State, from)
	}
	return s.GetDetection(ctx, id)
}

// Approve transitions pending -> approved.
func (s *Store) Approve(ctx context.Context, id uint) (*models.Detection, error) {
	return s.transition(ctx, id, models.DetectionPending, models.DetectionApproved, true)
}

// Reject transitions pending -> rejected. Terminal.
func (s *Store) Reject(ctx context.Context, id uint) (*models.Detection, error) {
	return s.transition(ctx, id, models.DetectionPending, models.DetectionRejected, true)
}

// MarkActioned transitions approved -> actioned, once warning delivery is
// confirmed. If delivery fails permanently the detection simply stays
// approved, eligible for manual re-trigger; it is never lost.
func (s *Store) MarkActioned(ctx context.Context, id uint) (*models.Detection, error) {
	return s.transition(ctx, id, models.DetectionApproved, models.DetectionActioned, false)
}

// PendingIter pages through open (pending) detections ordered by composite
// score descending, creation time ascending on ties. The sequence is lazy:
// each batch is fetched on demand via keyset pagination, and a fresh iterator
// restarts from the top.
type PendingIter struct {
	s         *Store
	batchSize int
	buf       []models.Detection
	pos       int
	last      *models.Detection
	done      bool
}

// ListPending returns a new iterator over pending detections.
func (s *Store) ListPending(batchSize int) *PendingIter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &PendingIter{s: s, batchSize: batchSize}
}

// Next returns the next pending detection, or nil when the sequence is
// exhausted.
func (it *PendingIter) Next(ctx context.Context) (*models.Detection, error) {
	if it.pos < len(it.buf) {
		det := it.buf[it.pos]
		it.pos++
		it.last = &det
		return &det, nil
	}
	if it.done {
		return nil, nil
	}

	q := it.s.db.WithContext(ctx).
		Where("state = ?", models.DetectionPending).
		Order("composite_score DESC, created_at ASC, id ASC").
		Limit(it.batchSize)
	if it.last != nil {
		q = q.Where(
			"(composite_score < ?) OR (composite_score = ? AND created_at > ?) OR (composite_score = ? AND created_at = ? AND id > ?)",
			it.last.CompositeScore,
			it.last.CompositeScore, it.last.CreatedAt,
			it.last.CompositeScore, it.last.CreatedAt, it.last.ID,
		)
	}

	var batch []models.Detection
	if err := q.Find(&batch).Error; err != nil {
		return nil, err
	}
	if len(batch) < it.batchSize {
		it.done = true
	}
	if len(batch) == 0 {
		return nil, nil
	}
	it.buf = batch
	it.pos = 1
	it.last = &batch[0]
	return &batch[0], nil
}

// CountByState returns how many detections are in the given state.
func (s *Store) CountByState(ctx context.Context, state string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Detection{}).
		Where("state = ?", state).
		Count(&n).Error
	return n, err
}
