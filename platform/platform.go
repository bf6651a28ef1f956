// Package platform defines the contract between the detection engine and a
// social platform connector. Connectors do the actual network I/O (fetching
// posts, comments, and profiles; posting replies); everything in this package
// is transport-agnostic. Connector failures are classified as transient
// (retryable) or permanent so the job layer can decide whether to retry.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Profile is a snapshot of an account's public metadata at fetch time.
type Profile struct {
	Username       string
	DisplayName    string
	Bio            string
	HasProfilePic  bool
	Verified       bool
	Followers      int64
	Following      int64
	PostCount      int64
	EngagementRate float64 // average engagement, percent of followers
}

// Post is immutable once fetched.
type Post struct {
	ID        string
	Username  string
	Caption   string
	CreatedAt time.Time
}

// Comment is immutable once fetched.
type Comment struct {
	ID        string
	PostID    string
	Username  string
	Text      string
	CreatedAt time.Time
}

// AccountActivity is everything a connector could fetch for one account's
// recent window. Any of the fields may be empty when the platform withholds
// data; scoring copes with partial activity.
type AccountActivity struct {
	Profile  *Profile
	Posts    []Post
	Comments []Comment
}

// Client is implemented by platform connectors.
type Client interface {
	FetchAccountActivity(ctx context.Context, username string, window time.Duration) (*AccountActivity, error)
	FetchPostComments(ctx context.Context, postID string) ([]Comment, error)
	// PostReply posts text as a reply to the indicated comment. commentID may
	// be empty, in which case the reply is a top-level comment on the post.
	PostReply(ctx context.Context, postID, commentID, text string) error
}

// ErrNotFound indicates the fetch or reply target no longer exists. Always
// wrapped in a PermanentError by well-behaved connectors.
var ErrNotFound = errors.New("target not found")

// TransientError marks a connector failure worth retrying: network flake,
// upstream rate-limit response, timeout.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient platform error (%s): %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a connector failure that retrying cannot fix: deleted
// target, revoked credentials, malformed request.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent platform error (%s): %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func Permanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
