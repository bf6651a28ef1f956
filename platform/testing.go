package platform

import (
	"context"
	"sync"
	"time"
)

// MockClient is an in-memory Client for tests and local development.
// Intentionally exported, for use in other packages. Fixture data is keyed by
// username or post ID; errors can be injected per operation to exercise the
// retry/failure paths.
type MockClient struct {
	lk sync.Mutex

	Activities map[string]*AccountActivity
	Comments   map[string][]Comment

	// Replies records every successful PostReply call, in order.
	Replies []MockReply

	// Errs injects a failure for an op key: "activity/<username>",
	// "comments/<postID>", or "reply/<postID>". The error is returned on each
	// call until the count reaches zero; a negative count never clears.
	Errs map[string]error
	// ErrCounts is the remaining number of failures per op key. Missing key
	// with a set error means fail forever.
	ErrCounts map[string]int
}

type MockReply struct {
	PostID    string
	CommentID string
	Text      string
}

var _ Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		Activities: make(map[string]*AccountActivity),
		Comments:   make(map[string][]Comment),
		Errs:       make(map[string]error),
		ErrCounts:  make(map[string]int),
	}
}

// FailWith injects err for the given op key. count <= 0 means fail on every
// call; otherwise the injection clears after count failures.
func (m *MockClient) FailWith(opKey string, err error, count int) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.Errs[opKey] = err
	m.ErrCounts[opKey] = count
}

func (m *MockClient) takeErr(opKey string) error {
	err, ok := m.Errs[opKey]
	if !ok {
		return nil
	}
	n := m.ErrCounts[opKey]
	if n > 0 {
		n--
		if n == 0 {
			delete(m.Errs, opKey)
			delete(m.ErrCounts, opKey)
		} else {
			m.ErrCounts[opKey] = n
		}
	}
	return err
}

func (m *MockClient) FetchAccountActivity(ctx context.Context, username string, window time.Duration) (*AccountActivity, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if err := m.takeErr("activity/" + username); err != nil {
		return nil, err
	}
	act, ok := m.Activities[username]
	if !ok {
		return nil, Permanent("fetch account activity", ErrNotFound)
	}
	return act, nil
}

func (m *MockClient) FetchPostComments(ctx context.Context, postID string) ([]Comment, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if err := m.takeErr("comments/" + postID); err != nil {
		return nil, err
	}
	comments, ok := m.Comments[postID]
	if !ok {
		return nil, Permanent("fetch post comments", ErrNotFound)
	}
	out := make([]Comment, len(comments))
	copy(out, comments)
	return out, nil
}

func (m *MockClient) PostReply(ctx context.Context, postID, commentID, text string) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if err := m.takeErr("reply/" + postID); err != nil {
		return err
	}
	m.Replies = append(m.Replies, MockReply{PostID: postID, CommentID: commentID, Text: text})
	return nil
}

// ReplyCount returns the number of successful replies posted so far.
func (m *MockClient) ReplyCount() int {
	m.lk.Lock()
	defer m.lk.Unlock()
	return len(m.Replies)
}
