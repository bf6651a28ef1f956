package models

import "encoding/json"

// Evidence is the persisted supporting material for one Detection: an
// indicator breakdown for bot-indicator detections, or cluster membership and
// sample texts for coordination detections. It lives as JSON in
// Detection.Evidence.
type Evidence struct {
	// bot-indicator fields
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Signals    []string           `json:"signals,omitempty"`

	// coordination fields
	Members        []string `json:"members,omitempty"`
	Representative string   `json:"representative,omitempty"`
	SampleTexts    []string `json:"sample_texts,omitempty"`
	CommentCount   int      `json:"comment_count,omitempty"`
	Similarity     float64  `json:"similarity,omitempty"`

	// velocity context read from the countstore at record time
	EvaluationsToday   int `json:"evaluations_today,omitempty"`
	DistinctCommenters int `json:"distinct_commenters,omitempty"`
}

func (e *Evidence) Marshal() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func UnmarshalEvidence(raw string) (*Evidence, error) {
	var e Evidence
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	return &e, nil
}
