package store

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sift-social/sift/models"
	"github.com/sift-social/sift/platform"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := NewStore(db, slog.Default(), 0.6)
	require.NoError(t, err)
	return s
}

func TestAccountLifecycle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	acct, err := s.AddAccount(ctx, "brand_account", "instagram")
	assert.NoError(err)
	assert.True(acct.Enabled)

	_, err = s.AddAccount(ctx, "brand_account", "instagram")
	assert.ErrorIs(err, ErrAccountExists)

	accounts, err := s.ListAccounts(ctx, true)
	assert.NoError(err)
	assert.Len(accounts, 1)

	assert.NoError(s.SetAccountEnabled(ctx, "brand_account", false))
	accounts, err = s.ListAccounts(ctx, true)
	assert.NoError(err)
	assert.Empty(accounts)

	// disabled, never deleted
	accounts, err = s.ListAccounts(ctx, false)
	assert.NoError(err)
	assert.Len(accounts, 1)

	assert.ErrorIs(s.SetAccountEnabled(ctx, "nobody", true), ErrNotFound)
}

func TestDueAccounts(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	_, err := s.AddAccount(ctx, "never_checked", "instagram")
	assert.NoError(err)
	_, err = s.AddAccount(ctx, "just_checked", "instagram")
	assert.NoError(err)

	score := 0.42
	assert.NoError(s.TouchAccountChecked(ctx, "just_checked", &score))

	due, err := s.DueAccounts(ctx, time.Now().Add(-time.Minute))
	assert.NoError(err)
	assert.Len(due, 1)
	assert.Equal("never_checked", due[0].Username)

	acct, err := s.GetAccount(ctx, "just_checked")
	assert.NoError(err)
	assert.Equal(0.42, acct.AutomationScore)
	assert.NotNil(acct.LastChecked)
}

func TestRecordDetectionThreshold(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	det, created, err := s.RecordDetection(ctx, models.DetectionKindBotIndicator, "lowscore", 0.3, nil, "", "")
	assert.NoError(err)
	assert.False(created)
	assert.Nil(det)
}

func TestRecordDetectionIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	ev := &models.Evidence{Indicators: map[string]float64{"posting_regularity": 0.9}}
	det, created, err := s.RecordDetection(ctx, models.DetectionKindBotIndicator, "spambot", 0.8, ev, "p1", "c1")
	assert.NoError(err)
	assert.True(created)
	assert.Equal(models.DetectionPending, det.State)

	// same target while still open: no duplicate
	again, created, err := s.RecordDetection(ctx, models.DetectionKindBotIndicator, "spambot", 0.85, nil, "p2", "c2")
	assert.NoError(err)
	assert.False(created)
	assert.Equal(det.ID, again.ID)

	// a different kind for the same target is a separate slot
	coord, created, err := s.RecordDetection(ctx, models.DetectionKindCoordination, "spambot", 0.8, nil, "p1", "")
	assert.NoError(err)
	assert.True(created)
	assert.NotEqual(det.ID, coord.ID)
}

func TestDetectionStateMachine(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	det, _, err := s.RecordDetection(ctx, models.DetectionKindBotIndicator, "spambot", 0.8, nil, "p1", "c1")
	assert.NoError(err)

	approved, err := s.Approve(ctx, det.ID)
	assert.NoError(err)
	assert.Equal(models.DetectionApproved, approved.State)
	assert.NotNil(approved.DecidedAt)

	// approve is pending-only
	_, err = s.Approve(ctx, det.ID)
	assert.ErrorIs(err, ErrInvalidState)
	_, err = s.Reject(ctx, det.ID)
	assert.ErrorIs(err, ErrInvalidState)

	actioned, err := s.MarkActioned(ctx, det.ID)
	assert.NoError(err)
	assert.Equal(models.DetectionActioned, actioned.State)

	// nothing leaves actioned
	_, err = s.Approve(ctx, det.ID)
	assert.ErrorIs(err, ErrInvalidState)
	_, err = s.MarkActioned(ctx, det.ID)
	assert.ErrorIs(err, ErrInvalidState)
}

func TestRejectIsTerminal(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	det, _, err := s.RecordDetection(ctx, models.DetectionKindBotIndicator, "falsepositive", 0.7, nil, "", "")
	assert.NoError(err)

	rejected, err := s.Reject(ctx, det.ID)
	assert.NoError(err)
	assert.Equal(models.DetectionRejected, rejected.State)

	_, err = s.Approve(ctx, det.ID)
	assert.ErrorIs(err, ErrInvalidState)

	// state unchanged after the failed transition
	cur, err := s.GetDetection(ctx, det.ID)
	assert.NoError(err)
	assert.Equal(models.DetectionRejected, cur.State)

	// a rejected detection frees the slot for a fresh record
	again, created, err := s.RecordDetection(ctx, models.DetectionKindBotIndicator, "falsepositive", 0.7, nil, "", "")
	assert.NoError(err)
	assert.True(created)
	assert.NotEqual(det.ID, again.ID)
}

func TestMissingDetection(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	_, err := s.GetDetection(ctx, 9999)
	assert.ErrorIs(err, ErrNotFound)
	_, err = s.Approve(ctx, 9999)
	assert.ErrorIs(err, ErrNotFound)
}

func TestListPendingOrdering(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	_, _, err := s.RecordDetection(ctx, models.DetectionKindBotIndicator, "mid", 0.7, nil, "", "")
	assert.NoError(err)
	time.Sleep(5 * time.Millisecond)
	_, _, err = s.RecordDetection(ctx, models.DetectionKindBotIndicator, "high", 0.95, nil, "", "")
	assert.NoError(err)
	time.Sleep(5 * time.Millisecond)
	_, _, err = s.RecordDetection(ctx, models.DetectionKindBotIndicator, "mid-later", 0.7, nil, "", "")
	assert.NoError(err)

	collect := func() []string {
		var targets []string
		it := s.ListPending(2) // small batch to exercise pagination
		for {
			det, err := it.Next(ctx)
			assert.NoError(err)
			if det == nil {
				break
			}
			targets = append(targets, det.Target)
		}
		return targets
	}

	// score descending, ties broken by earliest creation
	assert.Equal([]string{"high", "mid", "mid-later"}, collect())

	// restartable: a fresh iterator yields the same sequence
	assert.Equal([]string{"high", "mid", "mid-later"}, collect())
}

func TestUpsertPostsAndComments(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	post := platform.Post{ID: "p1", Username: "brand", Caption: "launch day", CreatedAt: time.Now()}
	assert.NoError(s.UpsertPost(ctx, post))
	assert.NoError(s.UpsertPost(ctx, post)) // immutable, re-fetch is a no-op

	comments := []platform.Comment{
		{ID: "c1", PostID: "p1", Username: "alice", Text: "nice"},
		{ID: "c2", PostID: "p1", Username: "bob", Text: "cool"},
	}
	assert.NoError(s.UpsertComments(ctx, comments))
	assert.NoError(s.UpsertComments(ctx, comments))

	var n int64
	assert.NoError(s.db.Model(&models.Comment{}).Count(&n).Error)
	assert.Equal(int64(2), n)
}
