// Package indicator scores a single account for automation likelihood, based
// on the account's recent activity window. Scoring is a pure function of its
// inputs: identical activity and configuration always produce an identical
// score, so evaluations are reproducible and directly testable.
package indicator

import (
	"errors"
	"sort"
)

// Indicator names. Each maps to a sub-score in [0,1]; higher means more
// bot-like.
const (
	PostingRegularity  = "posting_regularity"
	ContentDuplication = "content_duplication"
	ProfileDeficit     = "profile_deficit"
	Genericness        = "linguistic_genericness"
)

// Neutral is the sub-score used when an indicator has no data to work with.
// Missing data never blocks scoring and never counts for or against.
const Neutral = 0.5

// ErrInsufficientData is returned when an account has no fetched activity at
// all: no posts, no comments, no profile. There is nothing to score.
var ErrInsufficientData = errors.New("insufficient data: account has no fetched activity")

// Weights maps indicator name to its relative weight in the composite.
// Weights are policy, not algorithmic truth; they are normalized at composite
// time so only the ratios matter.
type Weights map[string]float64

func DefaultWeights() Weights {
	return Weights{
		PostingRegularity:  0.25,
		ContentDuplication: 0.25,
		ProfileDeficit:     0.2,
		Genericness:        0.3,
	}
}

// Config tunes the scorer. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	Weights Weights
	// BotPhrases are generic spam/promo phrases; comments containing them
	// raise the genericness sub-score.
	BotPhrases []string
	// VerifiedFloor is the composite assigned to platform-verified accounts,
	// short-circuiting all other indicators.
	VerifiedFloor float64
	// Cap bounds the composite below absolute certainty.
	Cap float64
}

func DefaultConfig() Config {
	return Config{
		Weights: DefaultWeights(),
		BotPhrases: []string{
			"check my profile", "check my bio", "click here", "make money fast",
			"follow me", "dm me", "link in bio", "check link", "join now",
			"earn money", "work from home", "passive income", "click my profile",
		},
		VerifiedFloor: 0.05,
		Cap:           0.99,
	}
}

// Score is one per-account, per-evaluation snapshot.
type Score struct {
	// Subs maps indicator name to its sub-score in [0,1].
	Subs map[string]float64 `json:"subs"`
	// Composite is the weighted aggregate, in [0,1].
	Composite float64 `json:"composite"`
	// Signals are human-readable notes on what tripped, for review evidence.
	Signals []string `json:"signals,omitempty"`
}

// composite computes the weighted sum of sub-scores, normalized by total
// weight and clipped to [0, cap]. Iteration is over sorted indicator names so
// float accumulation order is fixed.
func composite(subs map[string]float64, weights Weights, cap float64) float64 {
	names := make([]string, 0, len(subs))
	for name := range subs {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum, totalWeight float64
	for _, name := range names {
		w := weights[name]
		if w <= 0 {
			continue
		}
		sum += w * subs[name]
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return clamp(sum/totalWeight, 0, cap)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
