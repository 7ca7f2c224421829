package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	analysisPipeline = "analysis"

	// Job metrics
	jobsSubmittedTotal = "jobs_submitted_total"
	jobsTotal          = "jobs_total"
	jobDurationSeconds = "job_duration_seconds"
	jobRetriesTotal    = "job_retries_total"

	// Labels
	jobTypeLabel     = "type"
	jobOutcomeLabel  = "outcome"
	jobPriorityLabel = "priority"
)

// Job outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRetrying  = "retrying"
	OutcomeTimeout   = "timeout"
	OutcomePanic     = "panic"
	OutcomeCancelled = "cancelled"
	OutcomeReleased  = "released"
)

var jobOutcomeLabels = []string{
	jobTypeLabel,
	jobOutcomeLabel,
}

/**
* Metrics definition
**/
var jobsSubmittedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: analysisPipeline,
		Name:      jobsSubmittedTotal,
		Help:      "number of analysis jobs accepted by the queue",
	},
	[]string{jobTypeLabel, jobPriorityLabel},
)

var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: analysisPipeline,
		Name:      jobsTotal,
		Help:      "number of analysis runs partitioned by type and outcome",
	},
	jobOutcomeLabels,
)

var jobDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: analysisPipeline,
		Name:      jobDurationSeconds,
		Help:      "time spent processing an analysis run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	},
	jobOutcomeLabels,
)

var jobRetriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: analysisPipeline,
		Name:      jobRetriesTotal,
		Help:      "number of analysis jobs requeued after a retryable failure",
	},
	[]string{jobTypeLabel},
)

func IncreaseJobsSubmittedMetric(jobType, priority string) {
	labels := prometheus.Labels{
		jobTypeLabel:     jobType,
		jobPriorityLabel: priority,
	}
	jobsSubmittedTotalMetric.With(labels).Inc()
}

// ObserveJobRun records the outcome and the duration of one processing run.
func ObserveJobRun(jobType, outcome string, d time.Duration) {
	labels := prometheus.Labels{
		jobTypeLabel:    jobType,
		jobOutcomeLabel: outcome,
	}
	jobsTotalMetric.With(labels).Inc()
	jobDurationMetric.With(labels).Observe(d.Seconds())
	if outcome == OutcomeRetrying {
		jobRetriesTotalMetric.With(prometheus.Labels{jobTypeLabel: jobType}).Inc()
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedTotalMetric)
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(jobDurationMetric)
	prometheus.MustRegister(jobRetriesTotalMetric)
	prometheus.MustRegister(totalUniqueProjectsPerWeekMetric)
}
