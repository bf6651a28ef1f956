// Package engine ties the pipeline together: it owns the job handlers that
// fetch platform activity, run indicator scoring and coordination clustering,
// record detections, and deliver approved warnings. The engine never calls
// the platform outside a job, so every connector call runs under the job
// layer's deadline and retry envelope; pacing comes from the rate-limited
// client the engine is constructed with.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sift-social/sift/cachestore"
	"github.com/sift-social/sift/countstore"
	"github.com/sift-social/sift/detection/coordination"
	"github.com/sift-social/sift/detection/indicator"
	"github.com/sift-social/sift/detection/texttools"
	"github.com/sift-social/sift/jobs"
	"github.com/sift-social/sift/models"
	"github.com/sift-social/sift/platform"
	"github.com/sift-social/sift/store"
)

// Counter names in the countstore.
const (
	countAccountEvaluated = "account-evaluated"
	countPostEvaluated    = "post-evaluated"
	countPostCommenters   = "post-commenters"
	countDetection        = "detection"
	countWarningSent      = "warning-sent"
)

const profileCacheName = "activity"

type Config struct {
	// ActivityWindow bounds how far back account fetches reach.
	ActivityWindow time.Duration
	// MaxPostsPerAccount caps per-post follow-up jobs fanned out from one
	// account evaluation.
	MaxPostsPerAccount int
	// SampleTextLimit caps the comment texts stored as coordination evidence.
	SampleTextLimit int
}

func DefaultConfig() Config {
	return Config{
		ActivityWindow:     24 * time.Hour,
		MaxPostsPerAccount: 5,
		SampleTextLimit:    5,
	}
}

type Engine struct {
	Logger    *slog.Logger
	Client    platform.Client
	Store     *store.Store
	Jobs      *jobs.Orchestrator
	Counters  countstore.CountStore
	Cache     cachestore.CacheStore
	Scorer    *indicator.Scorer
	Clusterer *coordination.Clusterer

	cfg Config
}

func NewEngine(logger *slog.Logger, client platform.Client, st *store.Store, orch *jobs.Orchestrator, counters countstore.CountStore, cache cachestore.CacheStore, scorer *indicator.Scorer, clusterer *coordination.Clusterer, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ActivityWindow == 0 {
		cfg.ActivityWindow = def.ActivityWindow
	}
	if cfg.MaxPostsPerAccount == 0 {
		cfg.MaxPostsPerAccount = def.MaxPostsPerAccount
	}
	if cfg.SampleTextLimit == 0 {
		cfg.SampleTextLimit = def.SampleTextLimit
	}
	return &Engine{
		Logger:    logger.With("source", "engine"),
		Client:    client,
		Store:     st,
		Jobs:      orch,
		Counters:  counters,
		Cache:     cache,
		Scorer:    scorer,
		Clusterer: clusterer,
		cfg:       cfg,
	}
}

// RegisterHandlers binds the engine's handlers to the orchestrator. Call once
// before the orchestrator starts.
func (e *Engine) RegisterHandlers() {
	e.Jobs.HandleFunc(jobs.KindMonitorAccount, e.handleMonitorAccount)
	e.Jobs.HandleFunc(jobs.KindMonitorPost, e.handleMonitorPost)
	e.Jobs.HandleFunc(jobs.KindSendWarning, e.handleSendWarning)
}

// MonitorAccount enqueues an account evaluation. Idempotent within the
// orchestrator's bucket.
func (e *Engine) MonitorAccount(ctx context.Context, username string) error {
	_, _, err := e.Jobs.Enqueue(ctx, jobs.KindMonitorAccount, username, "")
	return err
}

// MonitorPost enqueues a post evaluation.
func (e *Engine) MonitorPost(ctx context.Context, postID string) error {
	_, _, err := e.Jobs.Enqueue(ctx, jobs.KindMonitorPost, postID, "")
	return err
}

func (e *Engine) handleMonitorAccount(ctx context.Context, job jobs.Job) error {
	username := job.Target()
	log := e.Logger.With("job", job.Kind(), "username", username)

	act, err := e.fetchActivity(ctx, username)
	if err != nil {
		return err
	}

	if err := e.Counters.Increment(ctx, countAccountEvaluated, username); err != nil {
		log.Warn("failed to bump evaluation counter", "error", err)
	}
	accountsEvaluated.Inc()

	score, err := e.Scorer.Score(act)
	if errors.Is(err, indicator.ErrInsufficientData) {
		log.Info("account has no activity to score")
		return e.Store.TouchAccountChecked(ctx, username, nil)
	}
	if err != nil {
		return fmt.Errorf("scoring account %s: %w", username, err)
	}

	if err := e.recordBotIndicator(ctx, username, score, "", ""); err != nil {
		return err
	}

	for _, p := range act.Posts {
		if err := e.Store.UpsertPost(ctx, p); err != nil {
			return fmt.Errorf("storing post %s: %w", p.ID, err)
		}
	}
	if err := e.Store.UpsertComments(ctx, act.Comments); err != nil {
		return fmt.Errorf("storing comments for %s: %w", username, err)
	}

	// fan out comment analysis over the freshest posts
	posts := latestPosts(act.Posts, e.cfg.MaxPostsPerAccount)
	for _, p := range posts {
		if err := e.MonitorPost(ctx, p.ID); err != nil {
			return err
		}
	}

	log.Info("account evaluated", "composite", score.Composite, "posts", len(posts))
	return e.Store.TouchAccountChecked(ctx, username, &score.Composite)
}

func (e *Engine) handleMonitorPost(ctx context.Context, job jobs.Job) error {
	postID := job.Target()
	log := e.Logger.With("job", job.Kind(), "post", postID)

	comments, err := e.Client.FetchPostComments(ctx, postID)
	if err != nil {
		return err
	}
	if err := e.Store.UpsertComments(ctx, comments); err != nil {
		return fmt.Errorf("storing comments for post %s: %w", postID, err)
	}

	if err := e.Counters.Increment(ctx, countPostEvaluated, postID); err != nil {
		log.Warn("failed to bump evaluation counter", "error", err)
	}
	postsEvaluated.Inc()

	// score each distinct commenter; a single bad profile fetch must not sink
	// the rest of the evaluation
	for _, username := range distinctCommenters(comments) {
		if err := e.Counters.IncrementDistinct(ctx, countPostCommenters, postID, username); err != nil {
			log.Warn("failed to bump distinct commenter counter", "error", err)
		}
		act, err := e.fetchActivity(ctx, username)
		if err != nil {
			log.Warn("skipping commenter, activity fetch failed", "username", username, "error", err)
			continue
		}
		if err := e.Counters.Increment(ctx, countAccountEvaluated, username); err != nil {
			log.Warn("failed to bump evaluation counter", "error", err)
		}
		score, err := e.Scorer.Score(act)
		if errors.Is(err, indicator.ErrInsufficientData) {
			continue
		}
		if err != nil {
			log.Warn("skipping commenter, scoring failed", "username", username, "error", err)
			continue
		}
		if err := e.recordBotIndicator(ctx, username, score, postID, firstCommentID(comments, username)); err != nil {
			return err
		}
	}

	// coordination pass over the whole comment set
	for _, cluster := range e.Clusterer.Cluster(comments) {
		if err := e.recordCoordination(ctx, postID, cluster); err != nil {
			return err
		}
	}

	log.Info("post evaluated", "comments", len(comments))
	return nil
}

// fetchActivity pulls account activity through the cache, so one post
// evaluation with many repeat commenters spends at most one connector call
// per account.
func (e *Engine) fetchActivity(ctx context.Context, username string) (*platform.AccountActivity, error) {
	var cached platform.AccountActivity
	hit, err := cachestore.GetJSON(ctx, e.Cache, profileCacheName, username, &cached)
	if err != nil {
		e.Logger.Warn("activity cache read failed", "username", username, "error", err)
	}
	if hit {
		activityCache.WithLabelValues("hit").Inc()
		return &cached, nil
	}
	activityCache.WithLabelValues("miss").Inc()

	act, err := e.Client.FetchAccountActivity(ctx, username, e.cfg.ActivityWindow)
	if err != nil {
		return nil, err
	}
	if err := cachestore.SetJSON(ctx, e.Cache, profileCacheName, username, act); err != nil {
		e.Logger.Warn("activity cache write failed", "username", username, "error", err)
	}
	return act, nil
}

func (e *Engine) recordBotIndicator(ctx context.Context, username string, score *indicator.Score, postID, commentID string) error {
	evals, err := e.Counters.GetCount(ctx, countAccountEvaluated, username, countstore.PeriodDay)
	if err != nil {
		e.Logger.Warn("failed to read evaluation counter", "username", username, "error", err)
	}
	ev := &models.Evidence{
		Indicators:       score.Subs,
		Signals:          score.Signals,
		EvaluationsToday: evals,
	}
	det, created, err := e.Store.RecordDetection(ctx, models.DetectionKindBotIndicator, username, score.Composite, ev, postID, commentID)
	if err != nil {
		return fmt.Errorf("recording bot-indicator detection for %s: %w", username, err)
	}
	if created {
		detectionsRecorded.WithLabelValues(models.DetectionKindBotIndicator).Inc()
		if cerr := e.Counters.Increment(ctx, countDetection, username); cerr != nil {
			e.Logger.Warn("failed to bump detection counter", "error", cerr)
		}
		e.Logger.Info("bot-indicator detection recorded", "username", username, "id", det.ID, "composite", score.Composite)
	}
	return nil
}

func (e *Engine) recordCoordination(ctx context.Context, postID string, cluster coordination.Cluster) error {
	// cluster identity is stable across re-evaluations of the same post with
	// the same membership
	target := "cluster:" + texttools.HashOfString(postID+"/"+strings.Join(cluster.Accounts, ","))

	// confidence grows with cluster size, capped below certainty
	confidence := 0.5 + 0.1*float64(len(cluster.Comments))
	if confidence > 0.9 {
		confidence = 0.9
	}

	texts := make([]string, 0, len(cluster.Comments))
	for _, cmt := range cluster.Comments {
		texts = append(texts, cmt.Text)
		if len(texts) == e.cfg.SampleTextLimit {
			break
		}
	}
	commenters, err := e.Counters.GetCountDistinct(ctx, countPostCommenters, postID, countstore.PeriodDay)
	if err != nil {
		e.Logger.Warn("failed to read distinct commenter counter", "post", postID, "error", err)
	}
	ev := &models.Evidence{
		Members:            cluster.Accounts,
		Representative:     cluster.Representative,
		SampleTexts:        texts,
		CommentCount:       len(cluster.Comments),
		Similarity:         cluster.Similarity,
		DistinctCommenters: commenters,
	}

	det, created, err := e.Store.RecordDetection(ctx, models.DetectionKindCoordination, target, confidence, ev, postID, "")
	if err != nil {
		return fmt.Errorf("recording coordination detection for post %s: %w", postID, err)
	}
	if created {
		detectionsRecorded.WithLabelValues(models.DetectionKindCoordination).Inc()
		e.Logger.Info("coordination detection recorded", "post", postID, "id", det.ID,
			"accounts", len(cluster.Accounts), "confidence", confidence)
	}
	return nil
}

// handleSendWarning delivers the warning reply for an approved detection. The
// payload is the detection ID. Delivery is idempotent: a detection already
// actioned (by a duplicate or recovered job) is left alone.
func (e *Engine) handleSendWarning(ctx context.Context, job jobs.Job) error {
	id, err := strconv.ParseUint(job.Payload(), 10, 64)
	if err != nil {
		return fmt.Errorf("bad send-warning payload %q: %w", job.Payload(), err)
	}

	det, err := e.Store.GetDetection(ctx, uint(id))
	if err != nil {
		return err
	}

	switch det.State {
	case models.DetectionActioned:
		return nil
	case models.DetectionApproved:
		// fall through to delivery
	default:
		e.Logger.Warn("send-warning job for non-approved detection", "id", det.ID, "state", det.State)
		return nil
	}

	text := warningText(det)
	if err := e.Client.PostReply(ctx, det.PostID, det.CommentID, text); err != nil {
		return err
	}

	if _, err := e.Store.MarkActioned(ctx, det.ID); err != nil {
		if errors.Is(err, store.ErrInvalidState) {
			return nil
		}
		return err
	}
	warningsSent.Inc()
	if cerr := e.Counters.Increment(ctx, countWarningSent, det.Target); cerr != nil {
		e.Logger.Warn("failed to bump warning counter", "error", cerr)
	}
	e.Logger.Info("warning delivered", "id", det.ID, "target", det.Target, "post", det.PostID)
	return nil
}

func distinctCommenters(comments []platform.Comment) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range comments {
		if !seen[c.Username] {
			seen[c.Username] = true
			out = append(out, c.Username)
		}
	}
	sort.Strings(out)
	return out
}

func firstCommentID(comments []platform.Comment, username string) string {
	for _, c := range comments {
		if c.Username == username {
			return c.ID
		}
	}
	return ""
}

func latestPosts(posts []platform.Post, n int) []platform.Post {
	out := make([]platform.Post, len(posts))
	copy(out, posts)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
