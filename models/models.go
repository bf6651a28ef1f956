package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is an account on the watch list, or one discovered during
// evaluation. Accounts are never hard-deleted, only disabled.
type Account struct {
	gorm.Model
	Username    string `gorm:"uniqueIndex"`
	Platform    string `gorm:"default:instagram"`
	DisplayName string
	Enabled     bool `gorm:"index;default:true"`
	LastChecked *time.Time
	// AutomationScore is the composite from the most recent evaluation.
	AutomationScore float64
}

// Post is immutable once fetched; it serves as the cache key for comment
// analysis.
type Post struct {
	gorm.Model
	PostID   string `gorm:"uniqueIndex"`
	Username string `gorm:"index"`
	Caption  string
	PostedAt time.Time
}

// Comment is immutable once fetched.
type Comment struct {
	gorm.Model
	CommentID string `gorm:"uniqueIndex"`
	PostID    string `gorm:"index"`
	Username  string `gorm:"index"`
	Text      string
	PostedAt  time.Time
}

// Detection kinds.
const (
	DetectionKindBotIndicator = "bot-indicator"
	DetectionKindCoordination = "coordination"
)

// Detection states. Lifecycle: pending -> approved -> actioned, or
// pending -> rejected. Nothing leaves actioned or rejected.
const (
	DetectionPending  = "pending"
	DetectionApproved = "approved"
	DetectionRejected = "rejected"
	DetectionActioned = "actioned"
)

// Detection is the reviewable unit: a suspected bot account or coordination
// cluster, carrying evidence and a review state.
type Detection struct {
	gorm.Model
	Kind   string `gorm:"index:idx_detection_target"`
	Target string `gorm:"index:idx_detection_target"`
	State  string `gorm:"index"`
	// CompositeScore is the weighted aggregate that crossed the threshold.
	CompositeScore float64 `gorm:"index"`
	// Evidence is a serialized Evidence blob.
	Evidence string
	// PostID/CommentID locate where a warning reply should be delivered.
	PostID    string
	CommentID string
	DecidedAt *time.Time
}

// Open reports whether the detection still occupies its (target, kind) slot
// for idempotent record creation: pending detections await a decision, and
// approved ones await warning delivery.
func (d *Detection) Open() bool {
	return d.State == DetectionPending || d.State == DetectionApproved
}
