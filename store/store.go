// Package store owns the persisted lifecycle of accounts, posts, comments,
// and detection records. All state transitions go through here; concurrent
// writers to the same target are serialized by per-target locks plus guarded
// updates, so the detection state machine holds under parallel job execution.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sift-social/sift/models"
	"github.com/sift-social/sift/platform"
)

var (
	// ErrNotFound is returned when a detection or account does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidState is returned on an illegal detection state transition.
	ErrInvalidState = errors.New("invalid detection state transition")
	// ErrAccountExists is returned when adding a username already on the watch list.
	ErrAccountExists = errors.New("account already on watch list")
)

type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	// minScore is the composite threshold below which no detection record is
	// created, bounding record growth.
	minScore float64

	targetLocks *xsync.MapOf[string, *sync.Mutex]
}

func NewStore(db *gorm.DB, logger *slog.Logger, minScore float64) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(
		&models.Account{},
		&models.Post{},
		&models.Comment{},
		&models.Detection{},
	); err != nil {
		return nil, fmt.Errorf("migrating detection schema: %w", err)
	}
	return &Store{
		db:          db,
		logger:      logger,
		minScore:    minScore,
		targetLocks: xsync.NewMapOf[string, *sync.Mutex](),
	}, nil
}

// MinScore returns the configured detection threshold.
func (s *Store) MinScore() float64 { return s.minScore }

// AddAccount puts a username on the watch list, enabled.
func (s *Store) AddAccount(ctx context.Context, username, platformName string) (*models.Account, error) {
	acct := models.Account{
		Username: username,
		Platform: platformName,
		Enabled:  true,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&acct)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, username)
	}
	return &acct, nil
}

func (s *Store) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *Store) ListAccounts(ctx context.Context, enabledOnly bool) ([]models.Account, error) {
	q := s.db.WithContext(ctx).Order("username")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var accounts []models.Account
	if err := q.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// SetAccountEnabled disables or re-enables monitoring. Accounts are never
// deleted.
func (s *Store) SetAccountEnabled(ctx context.Context, username string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("username = ?", username).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, username)
	}
	return nil
}

// TouchAccountChecked records an evaluation pass: last-checked time and, when
// the account was scored, the composite snapshot.
func (s *Store) TouchAccountChecked(ctx context.Context, username string, score *float64) error {
	now := time.Now()
	updates := map[string]any{"last_checked": &now}
	if score != nil {
		updates["automation_score"] = *score
	}
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("username = ?", username).
		Updates(updates).Error
}

// DueAccounts lists enabled accounts whose last check is older than the given
// cutoff (or that were never checked), ordered oldest-first.
func (s *Store) DueAccounts(ctx context.Context, before time.Time) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("last_checked IS NULL OR last_checked < ?", before).
		Order("last_checked").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpsertPost stores a fetched post. Posts are immutable; re-fetching is a
// no-op.
func (s *Store) UpsertPost(ctx context.Context, p platform.Post) error {
	post := models.Post{
		PostID:   p.ID,
		Username: p.Username,
		Caption:  p.Caption,
		PostedAt: p.CreatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&post).Error
}

// UpsertComments stores fetched comments, skipping any already present.
func (s *Store) UpsertComments(ctx context.Context, comments []platform.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	rows := make([]models.Comment, 0, len(comments))
	for _, c := range comments {
		rows = append(rows, models.Comment{
			CommentID: c.ID,
			PostID:    c.PostID,
			Username:  c.Username,
			Text:      c.Text,
			PostedAt:  c.CreatedAt,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}
