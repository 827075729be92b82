package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobTransitionsTotal, jobQueueDepth, jobTicksTotal, jobsInFlight, jobRecoveredTotal)
}

var (
	jobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_transitions_total",
			Help: "Job status transitions, labeled by job type and destination status.",
		},
		[]string{"type", "status"}, // 'completed', 'failed', 'retry', 'processing'
	)

	jobQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_queue_depth",
			Help: "Jobs per status in the statistics window, refreshed by stats queries.",
		},
		[]string{"status"},
	)

	jobTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_scheduler_ticks_total",
			Help: "Scheduler ticks, labeled by what triggered them.",
		},
		[]string{"trigger"}, // 'heartbeat', 'wake', 'rearm'
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Jobs currently executing in this process.",
		},
	)

	jobRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_recovered_total",
			Help: "Jobs touched by the stuck/stale sweep.",
		},
		[]string{"kind"}, // 'stuck', 'stale'
	)
)

func IncJobTransition(jobType, status string) {
	jobTransitionsTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func SetQueueDepth(status string, n int) {
	jobQueueDepth.WithLabelValues(norm(status)).Set(float64(n))
}

func IncSchedulerTick(trigger string) {
	jobTicksTotal.WithLabelValues(norm(trigger)).Inc()
}

func JobStarted()  { jobsInFlight.Inc() }
func JobFinished() { jobsInFlight.Dec() }

func AddRecovered(kind string, n int) {
	if n <= 0 {
		return
	}
	jobRecoveredTotal.WithLabelValues(norm(kind)).Add(float64(n))
}
