package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystem = "generation_api"

	jobsEnqueuedTotal  = "jobs_enqueued_total"
	jobsClaimedTotal   = "jobs_claimed_total"
	jobsCompletedTotal = "jobs_completed_total"
	jobsFailedTotal    = "jobs_failed_total"
	jobsRequeuedTotal  = "jobs_requeued_total"
	queueDepth         = "queue_depth"

	// Labels
	jobTypeLabel = "job_type"
	statusLabel  = "status"
)

/**
* Metrics definition
**/
var jobsEnqueuedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsEnqueuedTotal,
		Help:      "number of jobs enqueued, partitioned by job type",
	},
	[]string{jobTypeLabel},
)

var jobsClaimedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsClaimedTotal,
		Help:      "number of jobs claimed by workers, partitioned by job type",
	},
	[]string{jobTypeLabel},
)

var jobsCompletedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsCompletedTotal,
		Help:      "number of jobs that reached completed, partitioned by job type",
	},
	[]string{jobTypeLabel},
)

var jobsFailedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsFailedTotal,
		Help:      "number of jobs that reached failed, partitioned by job type",
	},
	[]string{jobTypeLabel},
)

var jobsRequeuedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsRequeuedTotal,
		Help:      "number of jobs requeued after their worker lease expired",
	},
)

var queueDepthMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      queueDepth,
		Help:      "number of jobs per status as of the last stats aggregation",
	},
	[]string{statusLabel},
)

func IncreaseJobsEnqueued(jobType string) {
	jobsEnqueuedTotalMetric.With(prometheus.Labels{jobTypeLabel: jobType}).Inc()
}

func IncreaseJobsClaimed(jobType string) {
	jobsClaimedTotalMetric.With(prometheus.Labels{jobTypeLabel: jobType}).Inc()
}

func IncreaseJobsCompleted(jobType string) {
	jobsCompletedTotalMetric.With(prometheus.Labels{jobTypeLabel: jobType}).Inc()
}

func IncreaseJobsFailed(jobType string) {
	jobsFailedTotalMetric.With(prometheus.Labels{jobTypeLabel: jobType}).Inc()
}

func IncreaseJobsRequeued(count int64) {
	jobsRequeuedTotalMetric.Add(float64(count))
}

func SetQueueDepth(status string, count int64) {
	queueDepthMetric.With(prometheus.Labels{statusLabel: status}).Set(float64(count))
}

func init() {
	prometheus.MustRegister(jobsEnqueuedTotalMetric)
	prometheus.MustRegister(jobsClaimedTotalMetric)
	prometheus.MustRegister(jobsCompletedTotalMetric)
	prometheus.MustRegister(jobsFailedTotalMetric)
	prometheus.MustRegister(jobsRequeuedTotalMetric)
	prometheus.MustRegister(queueDepthMetric)
}
