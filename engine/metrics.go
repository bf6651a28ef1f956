package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var accountsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sift_accounts_evaluated_total",
	Help: "The total number of account evaluations run",
})

var postsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sift_posts_evaluated_total",
	Help: "The total number of post evaluations run",
})

var detectionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sift_detections_recorded_total",
	Help: "The total number of detections recorded, by kind",
}, []string{"kind"})

var warningsSent = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sift_warnings_sent_total",
	Help: "The total number of warning replies delivered",
})

var activityCache = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sift_activity_cache_total",
	Help: "Account activity cache lookups, by result",
}, []string{"result"})
