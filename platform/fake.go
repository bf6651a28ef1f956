package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// FakeClient synthesizes plausible platform data for local development and
// load testing, without touching any real network. Roughly one in three
// generated commenters behaves like a bot: templated comment text, metronomic
// posting times, and a hollowed-out profile. Data for a given username or post
// ID is generated once and then served consistently.
type FakeClient struct {
	lk    sync.Mutex
	faker *gofakeit.Faker

	activities map[string]*AccountActivity
	comments   map[string][]Comment
	replies    []MockReply
}

var _ Client = (*FakeClient)(nil)

var fakeBotTemplates = []string{
	"Great content! Check my profile for more",
	"Amazing! Follow me and DM me to earn money fast",
	"Love this! Click here, link in bio",
}

func NewFakeClient(seed int64) *FakeClient {
	return &FakeClient{
		faker:      gofakeit.New(seed),
		activities: make(map[string]*AccountActivity),
		comments:   make(map[string][]Comment),
	}
}

func (f *FakeClient) looksLikeBot(username string) bool {
	return len(username)%3 == 0
}

func (f *FakeClient) FetchAccountActivity(ctx context.Context, username string, window time.Duration) (*AccountActivity, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	if act, ok := f.activities[username]; ok {
		return act, nil
	}

	bot := f.looksLikeBot(username)
	profile := &Profile{
		Username:       username,
		DisplayName:    f.faker.Name(),
		Bio:            f.faker.Sentence(8),
		HasProfilePic:  true,
		Followers:      int64(f.faker.Number(500, 20000)),
		Following:      int64(f.faker.Number(100, 2000)),
		PostCount:      int64(f.faker.Number(10, 500)),
		EngagementRate: f.faker.Float64Range(1.0, 8.0),
	}
	if bot {
		profile.Bio = ""
		profile.HasProfilePic = false
		profile.Followers = int64(f.faker.Number(5, 80))
		profile.Following = profile.Followers * int64(f.faker.Number(12, 40))
		profile.EngagementRate = f.faker.Float64Range(0.01, 0.3)
	}

	base := time.Now().Add(-window)
	var posts []Post
	var comments []Comment
	numPosts := f.faker.Number(2, 5)
	for i := 0; i < numPosts; i++ {
		at := base.Add(time.Duration(i) * window / time.Duration(numPosts+1))
		if !bot {
			// humans post at ragged intervals
			at = at.Add(time.Duration(f.faker.Number(0, 3600)) * time.Second)
		}
		posts = append(posts, Post{
			ID:        fmt.Sprintf("%s-post-%d", username, i),
			Username:  username,
			Caption:   f.faker.Sentence(10),
			CreatedAt: at,
		})
	}
	numComments := f.faker.Number(3, 8)
	for i := 0; i < numComments; i++ {
		text := f.faker.Sentence(12)
		if bot {
			text = fakeBotTemplates[i%len(fakeBotTemplates)]
		}
		comments = append(comments, Comment{
			ID:        fmt.Sprintf("%s-cmt-%d", username, i),
			PostID:    fmt.Sprintf("someone-else-post-%d", i),
			Username:  username,
			Text:      text,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	act := &AccountActivity{Profile: profile, Posts: posts, Comments: comments}
	f.activities[username] = act
	return act, nil
}

func (f *FakeClient) FetchPostComments(ctx context.Context, postID string) ([]Comment, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	if comments, ok := f.comments[postID]; ok {
		return comments, nil
	}

	var comments []Comment
	numCommenters := f.faker.Number(5, 15)
	for i := 0; i < numCommenters; i++ {
		username := strings.ToLower(f.faker.Username())
		text := f.faker.Sentence(10)
		if f.looksLikeBot(username) {
			text = fakeBotTemplates[f.faker.Number(0, len(fakeBotTemplates)-1)]
		}
		comments = append(comments, Comment{
			ID:        fmt.Sprintf("%s-cmt-%d", postID, i),
			PostID:    postID,
			Username:  username,
			Text:      text,
			CreatedAt: time.Now().Add(-time.Duration(f.faker.Number(60, 86400)) * time.Second),
		})
	}
	f.comments[postID] = comments
	return comments, nil
}

func (f *FakeClient) PostReply(ctx context.Context, postID, commentID, text string) error {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.replies = append(f.replies, MockReply{PostID: postID, CommentID: commentID, Text: text})
	return nil
}
