package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wastewise/taskcore/internal/health"
)

var (
	// Worker metrics

	JobPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskcore",
		Name:      "job_pickup_latency_seconds",
		Help:      "Time from job creation to a worker claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	JobExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskcore",
		Name:      "job_execution_duration_seconds",
		Help:      "Duration of forecast job execution.",
		Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"status"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskcore",
		Name:      "worker_jobs_in_flight",
		Help:      "Number of forecast jobs currently being executed.",
	})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskcore",
		Name:      "jobs_completed_total",
		Help:      "Total jobs finished, by outcome.",
	}, []string{"outcome"})

	// Reaper metrics

	ReaperRescuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskcore",
		Name:      "reaper_rescued_total",
		Help:      "Total stale running jobs handled by the reaper.",
	}, []string{"action"})

	ReaperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskcore",
		Name:      "reaper_cycle_duration_seconds",
		Help:      "Time taken for one reaper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// Outbox metrics

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskcore",
		Name:      "notifications_total",
		Help:      "Outbox dispatch outcomes, by channel.",
	}, []string{"channel", "outcome"})

	DispatchBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskcore",
		Name:      "dispatch_batch_duration_seconds",
		Help:      "Time taken for one outbox dispatch batch.",
		Buckets:   prometheus.DefBuckets,
	})

	OutboxEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskcore",
		Name:      "outbox_enqueued_total",
		Help:      "Notifications enqueued to the outbox, by channel.",
	}, []string{"channel"})

	// Worker lifecycle

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskcore",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskcore",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times the worker has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskcore",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskcore",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		JobPickupLatency,
		JobExecutionDuration,
		JobsInFlight,
		JobsCompletedTotal,
		ReaperRescuedTotal,
		ReaperCycleDuration,
		NotificationsTotal,
		DispatchBatchDuration,
		OutboxEnqueuedTotal,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus the liveness/readiness probes on the
// operational port.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		if result.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeHealth(w, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
