package indicator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sift-social/sift/detection/texttools"
	"github.com/sift-social/sift/platform"
)

var suspiciousUsername = regexp.MustCompile(`(bot|follow|auto|\d{4})$`)

// Scorer computes IndicatorScores. Safe for concurrent use; it holds only
// immutable configuration.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Cap == 0 {
		cfg.Cap = DefaultConfig().Cap
	}
	return &Scorer{cfg: cfg}
}

// Score evaluates one account's activity window. No side effects, no clock, no
// I/O: everything is derived from the arguments.
//
// Verified accounts short-circuit to the configured floor composite. Missing
// data for an individual indicator yields the Neutral sub-score; only an
// account with no activity at all fails, with ErrInsufficientData.
func (s *Scorer) Score(act *platform.AccountActivity) (*Score, error) {
	if act == nil || (act.Profile == nil && len(act.Posts) == 0 && len(act.Comments) == 0) {
		return nil, ErrInsufficientData
	}

	if act.Profile != nil && act.Profile.Verified {
		return &Score{
			Subs:      map[string]float64{},
			Composite: s.cfg.VerifiedFloor,
			Signals:   []string{"verified_account"},
		}, nil
	}

	out := &Score{Subs: make(map[string]float64, 4)}
	out.Subs[PostingRegularity] = scorePostingRegularity(act, out)
	out.Subs[ContentDuplication] = scoreContentDuplication(act, out)
	out.Subs[ProfileDeficit] = s.scoreProfileDeficit(act, out)
	out.Subs[Genericness] = s.scoreGenericness(act, out)
	out.Composite = composite(out.Subs, s.cfg.Weights, s.cfg.Cap)
	sort.Strings(out.Signals)
	return out, nil
}

// scorePostingRegularity measures how metronomic the account's activity
// timing is. Low variance between consecutive post/comment timestamps is a
// scheduler tell. Needs at least three timestamped events; otherwise Neutral.
func scorePostingRegularity(act *platform.AccountActivity, out *Score) float64 {
	var times []time.Time
	for _, p := range act.Posts {
		if !p.CreatedAt.IsZero() {
			times = append(times, p.CreatedAt)
		}
	}
	for _, c := range act.Comments {
		if !c.CreatedAt.IsZero() {
			times = append(times, c.CreatedAt)
		}
	}
	if len(times) < 3 {
		return Neutral
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}

	var mean float64
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))
	if mean <= 0 {
		// all events at the same instant: as regular as it gets
		out.Signals = append(out.Signals, "suspiciously_regular_posting")
		return 1
	}

	var variance float64
	for _, v := range intervals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(intervals))
	cv := math.Sqrt(variance) / mean

	score := clamp(1-cv, 0, 1)
	if score >= 0.7 {
		out.Signals = append(out.Signals, "suspiciously_regular_posting")
	}
	return score
}

// scoreContentDuplication is the fraction of the account's own texts (captions
// and comments) that are duplicates after normalization.
func scoreContentDuplication(act *platform.AccountActivity, out *Score) float64 {
	var texts []string
	for _, p := range act.Posts {
		if t := texttools.Normalize(p.Caption); t != "" {
			texts = append(texts, t)
		}
	}
	for _, c := range act.Comments {
		if t := texttools.Normalize(c.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) < 2 {
		return Neutral
	}
	distinct := len(texttools.DedupeStrings(texts))
	score := 1 - float64(distinct)/float64(len(texts))
	if score >= 0.5 {
		out.Signals = append(out.Signals, "repeated_own_content")
	}
	return score
}

// scoreProfileDeficit accumulates profile red flags: hollow profile, lopsided
// follow graph, engagement far below baseline, throwaway username shape.
func (s *Scorer) scoreProfileDeficit(act *platform.AccountActivity, out *Score) float64 {
	p := act.Profile
	if p == nil {
		return Neutral
	}
	var score float64
	if !p.HasProfilePic {
		score += 0.3
		out.Signals = append(out.Signals, "no_profile_pic")
	}
	if strings.TrimSpace(p.Bio) == "" {
		score += 0.2
		out.Signals = append(out.Signals, "empty_bio")
	}
	if (p.Followers > 0 && float64(p.Following)/float64(p.Followers) > 10) ||
		(p.Followers == 0 && p.Following > 10) {
		score += 0.3
		out.Signals = append(out.Signals, "high_following_ratio")
	}
	if p.PostCount > 1000 && p.Followers < 1000 {
		score += 0.1
		out.Signals = append(out.Signals, "excessive_post_volume")
	}
	if p.EngagementRate > 0 && p.EngagementRate < 0.5 {
		score += 0.2
		out.Signals = append(out.Signals, "extremely_low_engagement")
	}
	if suspiciousUsername.MatchString(strings.ToLower(p.Username)) {
		score += 0.1
		out.Signals = append(out.Signals, "suspicious_username")
	}
	return clamp(score, 0, 1)
}

// scoreGenericness measures how templated the account's comment text is:
// known spam phrases, emoji walls, embedded URLs, and a small repeated
// template set.
func (s *Scorer) scoreGenericness(act *platform.AccountActivity, out *Score) float64 {
	if len(act.Comments) == 0 {
		return Neutral
	}

	var score float64

	var phraseMatches []string
	for _, c := range act.Comments {
		lower := strings.ToLower(c.Text)
		for _, phrase := range s.cfg.BotPhrases {
			if strings.Contains(lower, phrase) {
				phraseMatches = append(phraseMatches, phrase)
			}
		}
	}
	if len(phraseMatches) > 0 {
		score += math.Min(float64(len(phraseMatches))*0.1, 0.5)
		out.Signals = append(out.Signals,
			fmt.Sprintf("suspicious_phrases: %s", strings.Join(texttools.DedupeStrings(phraseMatches), ", ")))
	}

	maxEmoji := 0
	for _, c := range act.Comments {
		if n := texttools.CountEmoji(c.Text); n > maxEmoji {
			maxEmoji = n
		}
	}
	if maxEmoji > 5 {
		score += math.Min(float64(maxEmoji-5)*0.05, 0.2)
		out.Signals = append(out.Signals, "excessive_emojis")
	}

	for _, c := range act.Comments {
		if len(texttools.ExtractTextURLs(c.Text)) > 0 {
			score += 0.3
			out.Signals = append(out.Signals, "contains_urls")
			break
		}
	}

	if len(act.Comments) >= 2 {
		var texts []string
		for _, c := range act.Comments {
			if t := texttools.Normalize(c.Text); t != "" {
				texts = append(texts, t)
			}
		}
		if len(texts) >= 2 {
			distinct := len(texttools.DedupeStrings(texts))
			templateRate := 1 - float64(distinct)/float64(len(texts))
			score += templateRate * 0.3
		}
	}

	return clamp(score, 0, 1)
}
