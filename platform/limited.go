package platform

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// LimitedClient paces every connector call through a shared token bucket.
// Jobs fan out a variable number of calls (one post evaluation fetches the
// activity of every distinct commenter), so the quota has to be enforced at
// the call site rather than per job.
type LimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

var _ Client = (*LimitedClient)(nil)

// NewLimitedClient wraps inner so each call waits on limiter first. A nil
// limiter means no pacing.
func NewLimitedClient(inner Client, limiter *rate.Limiter) *LimitedClient {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &LimitedClient{inner: inner, limiter: limiter}
}

func (c *LimitedClient) FetchAccountActivity(ctx context.Context, username string, window time.Duration) (*AccountActivity, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Transient("rate limit wait", err)
	}
	return c.inner.FetchAccountActivity(ctx, username, window)
}

func (c *LimitedClient) FetchPostComments(ctx context.Context, postID string) ([]Comment, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Transient("rate limit wait", err)
	}
	return c.inner.FetchPostComments(ctx, postID)
}

func (c *LimitedClient) PostReply(ctx context.Context, postID, commentID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return Transient("rate limit wait", err)
	}
	return c.inner.PostReply(ctx, postID, commentID, text)
}
