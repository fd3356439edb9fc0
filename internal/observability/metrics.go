package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesmith_jobs_started_total",
			Help: "Total number of generation jobs started",
		},
	)

	JobsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesmith_jobs_completed_total",
			Help: "Total number of generation jobs completed",
		},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagesmith_jobs_failed_total",
			Help: "Total number of generation jobs failed",
		},
		[]string{"step"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagesmith_step_duration_seconds",
			Help:    "Duration of pipeline steps in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"step"},
	)

	PatchApplications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagesmith_patch_applications_total",
			Help: "Change requests by resolving tier",
		},
		[]string{"tier"},
	)

	TokensUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesmith_llm_tokens_total",
			Help: "Cumulative LLM tokens consumed",
		},
	)

	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesmith_store_conflicts_total",
			Help: "Precondition conflicts surfaced by the persistence layer",
		},
	)

	PageViews = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesmith_page_views_total",
			Help: "Served page views",
		},
	)

	PageLeads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagesmith_page_leads_total",
			Help: "Lead submissions recorded against served pages",
		},
	)
)
