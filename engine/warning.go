package engine

import (
	"github.com/spaolacci/murmur3"

	"github.com/sift-social/sift/models"
)

// warningTemplates rotate so warning replies don't all read identically and
// trip the platform's own duplicate-content filters.
var warningTemplates = []string{
	"Heads up: this account shows patterns consistent with automated activity. Be cautious with any links or offers in its comments.",
	"Caution: activity from this account matches common bot behavior. Avoid clicking links it shares.",
	"Notice: this comment appears to come from an automated account. Treat its claims and links with care.",
	"This account's recent activity looks automated. Please be careful engaging with its content.",
}

var coordinationTemplates = []string{
	"Heads up: several accounts are posting near-identical comments here, which usually indicates a coordinated campaign. Be cautious with their links.",
	"Notice: the repeated comments below appear to be part of a coordinated posting campaign. Treat them with care.",
}

// warningText picks a template deterministically from the detection target,
// so retries of the same warning always post the same text.
func warningText(det *models.Detection) string {
	templates := warningTemplates
	if det.Kind == models.DetectionKindCoordination {
		templates = coordinationTemplates
	}
	idx := murmur3.Sum64([]byte(det.Target)) % uint64(len(templates))
	return templates[idx]
}
