package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fuelsync"

// PrometheusRecorder exports metrics through a Prometheus registry.
type PrometheusRecorder struct {
	rateLookups       *prometheus.CounterVec
	rateFetches       *prometheus.CounterVec
	rateFetchDuration prometheus.Histogram
	rateCache         *prometheus.CounterVec
	cascadeRuns       *prometheus.CounterVec
	cascadeBatches    prometheus.Counter
	cascadeChildren   prometheus.Counter
	entities          *prometheus.CounterVec
	sweepJobs         *prometheus.CounterVec
}

// NewPrometheus registers the application collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		rateLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_lookups_total",
			Help:      "Exchange rate lookups by resolution source.",
		}, []string{"source"}),
		rateFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_fetches_total",
			Help:      "Calls to the external rate source by status.",
		}, []string{"status"}),
		rateFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_fetch_duration_seconds",
			Help:      "Latency of the external rate source.",
			Buckets:   prometheus.DefBuckets,
		}),
		rateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_cache_requests_total",
			Help:      "Rate snapshot cache lookups by result.",
		}, []string{"result"}),
		cascadeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_runs_total",
			Help:      "Vehicle cascade deletes by outcome.",
		}, []string{"status"}),
		cascadeBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_batches_total",
			Help:      "Batched delete calls issued by cascades.",
		}),
		cascadeChildren: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_children_total",
			Help:      "Child records found by cascades.",
		}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_writes_total",
			Help:      "Entity writes by kind and operation.",
		}, []string{"kind", "op"}),
		sweepJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_jobs_total",
			Help:      "Orphan sweep jobs by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		r.rateLookups,
		r.rateFetches,
		r.rateFetchDuration,
		r.rateCache,
		r.cascadeRuns,
		r.cascadeBatches,
		r.cascadeChildren,
		r.entities,
		r.sweepJobs,
	)
	return r
}

func (r *PrometheusRecorder) IncRateLookup(source string) {
	r.rateLookups.WithLabelValues(source).Inc()
}

func (r *PrometheusRecorder) IncRateFetch(status string) {
	r.rateFetches.WithLabelValues(status).Inc()
}

func (r *PrometheusRecorder) ObserveRateFetchDuration(duration time.Duration) {
	r.rateFetchDuration.Observe(duration.Seconds())
}

func (r *PrometheusRecorder) IncRateCacheHit() {
	r.rateCache.WithLabelValues("hit").Inc()
}

func (r *PrometheusRecorder) IncRateCacheMiss() {
	r.rateCache.WithLabelValues("miss").Inc()
}

func (r *PrometheusRecorder) IncCascadeRun(status string) {
	r.cascadeRuns.WithLabelValues(status).Inc()
}

func (r *PrometheusRecorder) IncCascadeBatch() {
	r.cascadeBatches.Inc()
}

func (r *PrometheusRecorder) ObserveCascadeChildren(count int) {
	r.cascadeChildren.Add(float64(count))
}

func (r *PrometheusRecorder) IncEntityCreated(kind string) {
	r.entities.WithLabelValues(kind, "create").Inc()
}

func (r *PrometheusRecorder) IncEntityUpdated(kind string) {
	r.entities.WithLabelValues(kind, "update").Inc()
}

func (r *PrometheusRecorder) IncEntityDeleted(kind string) {
	r.entities.WithLabelValues(kind, "delete").Inc()
}

func (r *PrometheusRecorder) IncSweepJob(status string) {
	r.sweepJobs.WithLabelValues(status).Inc()
}
