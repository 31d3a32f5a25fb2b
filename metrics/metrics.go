package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted counts accepted and rejected submissions.
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaconv_jobs_submitted_total",
		Help: "Total job submissions by outcome",
	}, []string{"outcome"})

	// JobsFinished counts jobs reaching a terminal status.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaconv_jobs_finished_total",
		Help: "Total jobs reaching a terminal status",
	}, []string{"status"})

	// JobsDegraded counts jobs finished as done without the requested conversion.
	JobsDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaconv_jobs_degraded_total",
		Help: "Total jobs completed with a fallback artifact",
	}, []string{"plan"})

	// JobDuration tracks wall time from worker pickup to terminal status.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaconv_job_duration_seconds",
		Help:    "Duration of a job from start to terminal status",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 13), // 0.5s to ~34min
	}, []string{"status"})

	// ToolInvocations counts external tool calls by tool and result.
	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaconv_tool_invocations_total",
		Help: "Total external tool invocations",
	}, []string{"tool", "result"})

	// ToolDuration tracks how long external tool calls take.
	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaconv_tool_duration_seconds",
		Help:    "Duration of external tool invocations",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 18),
	}, []string{"tool"})

	// QueueDepth is the number of jobs waiting for a worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaconv_queue_depth",
		Help: "Jobs waiting for a worker",
	})

	// JobsRunning is the number of jobs currently held by a worker.
	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaconv_jobs_running",
		Help: "Jobs currently being processed",
	})
)

// ObserveTool records one external tool invocation.
func ObserveTool(tool string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ToolInvocations.WithLabelValues(tool, result).Inc()
	ToolDuration.WithLabelValues(tool).Observe(seconds)
}
