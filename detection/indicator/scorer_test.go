package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sift-social/sift/platform"
)

func testActivity() *platform.AccountActivity {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &platform.AccountActivity{
		Profile: &platform.Profile{
			Username:       "promo_follow",
			Bio:            "",
			HasProfilePic:  false,
			Followers:      20,
			Following:      900,
			PostCount:      40,
			EngagementRate: 0.1,
		},
		Posts: []platform.Post{
			{ID: "p1", Caption: "buy now", CreatedAt: base},
			{ID: "p2", Caption: "buy now", CreatedAt: base.Add(1 * time.Hour)},
			{ID: "p3", Caption: "buy now", CreatedAt: base.Add(2 * time.Hour)},
		},
		Comments: []platform.Comment{
			{ID: "c1", Text: "check my profile for deals", CreatedAt: base.Add(3 * time.Hour)},
			{ID: "c2", Text: "check my profile for deals", CreatedAt: base.Add(4 * time.Hour)},
		},
	}
}

func TestScoreDeterminism(t *testing.T) {
	assert := assert.New(t)

	scorer := NewScorer(DefaultConfig())
	act := testActivity()

	first, err := scorer.Score(act)
	assert.NoError(err)
	for i := 0; i < 10; i++ {
		again, err := scorer.Score(act)
		assert.NoError(err)
		assert.Equal(first.Composite, again.Composite)
		assert.Equal(first.Subs, again.Subs)
		assert.Equal(first.Signals, again.Signals)
	}
}

func TestScoreBotLike(t *testing.T) {
	assert := assert.New(t)

	scorer := NewScorer(DefaultConfig())
	score, err := scorer.Score(testActivity())
	assert.NoError(err)

	// metronomic posting, repeated text, hollow profile, spam phrases
	assert.Greater(score.Subs[PostingRegularity], 0.9)
	assert.Greater(score.Subs[ContentDuplication], 0.5)
	assert.Greater(score.Subs[ProfileDeficit], 0.7)
	assert.Greater(score.Subs[Genericness], 0.2)
	assert.Greater(score.Composite, 0.6)
	assert.LessOrEqual(score.Composite, 0.99)
	assert.Contains(score.Signals, "no_profile_pic")
	assert.Contains(score.Signals, "high_following_ratio")
	assert.Contains(score.Signals, "suspiciously_regular_posting")
}

func TestScoreInsufficientData(t *testing.T) {
	assert := assert.New(t)

	scorer := NewScorer(DefaultConfig())

	_, err := scorer.Score(nil)
	assert.ErrorIs(err, ErrInsufficientData)

	_, err = scorer.Score(&platform.AccountActivity{})
	assert.ErrorIs(err, ErrInsufficientData)
}

func TestScorePartialActivity(t *testing.T) {
	assert := assert.New(t)

	scorer := NewScorer(DefaultConfig())

	// comments only: no posts, no profile. Scoring succeeds with neutral
	// sub-scores for the indicators that have nothing to look at.
	act := &platform.AccountActivity{
		Comments: []platform.Comment{
			{ID: "c1", Text: "nice shot!", CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		},
	}
	score, err := scorer.Score(act)
	assert.NoError(err)
	assert.Equal(Neutral, score.Subs[PostingRegularity])
	assert.Equal(Neutral, score.Subs[ContentDuplication])
	assert.Equal(Neutral, score.Subs[ProfileDeficit])
	assert.GreaterOrEqual(score.Composite, 0.0)
	assert.LessOrEqual(score.Composite, 1.0)
}

func TestScoreVerifiedShortCircuit(t *testing.T) {
	assert := assert.New(t)

	scorer := NewScorer(DefaultConfig())
	act := testActivity()
	act.Profile.Verified = true

	score, err := scorer.Score(act)
	assert.NoError(err)
	assert.Equal(0.05, score.Composite)
	assert.Equal([]string{"verified_account"}, score.Signals)
}

func TestScoreWeightsAreConfig(t *testing.T) {
	assert := assert.New(t)

	act := testActivity()

	cfg := DefaultConfig()
	cfg.Weights = Weights{Genericness: 1.0}
	onlyGeneric := NewScorer(cfg)
	score, err := onlyGeneric.Score(act)
	assert.NoError(err)
	assert.InDelta(score.Subs[Genericness], score.Composite, 0.0001)
}

func TestScoreHumanLike(t *testing.T) {
	assert := assert.New(t)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	act := &platform.AccountActivity{
		Profile: &platform.Profile{
			Username:       "casual_hiker",
			Bio:            "mountains and coffee",
			HasProfilePic:  true,
			Followers:      800,
			Following:      350,
			PostCount:      120,
			EngagementRate: 4.2,
		},
		Posts: []platform.Post{
			{ID: "p1", Caption: "sunrise from the ridge", CreatedAt: base},
			{ID: "p2", Caption: "rest day", CreatedAt: base.Add(13 * time.Hour)},
			{ID: "p3", Caption: "new boots finally broken in", CreatedAt: base.Add(71 * time.Hour)},
		},
		Comments: []platform.Comment{
			{ID: "c1", Text: "love this trail", CreatedAt: base.Add(2 * time.Hour)},
			{ID: "c2", Text: "where is this?", CreatedAt: base.Add(30 * time.Hour)},
		},
	}

	scorer := NewScorer(DefaultConfig())
	score, err := scorer.Score(act)
	assert.NoError(err)
	assert.Less(score.Composite, 0.4)
}
