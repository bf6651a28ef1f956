package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sift_jobs_enqueued_total",
	Help: "The total number of jobs enqueued",
}, []string{"orchestrator_name", "kind"})

var jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sift_jobs_processed_total",
	Help: "The total number of jobs processed, by final state",
}, []string{"orchestrator_name", "kind", "state"})

var jobsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sift_jobs_retried_total",
	Help: "The total number of job retries scheduled",
}, []string{"orchestrator_name", "kind"})
