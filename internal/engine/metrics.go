package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: загрузка записей, включая ретраи
	FetchDuration *prometheus.HistogramVec

	// Traffic: запущенные загрузки по вариантам графика
	FetchTotal *prometheus.CounterVec

	// Errors: fetch, circuit_open, rate_limit, superseded
	ErrorTotal *prometheus.CounterVec

	// Правки, отброшенные во время загрузки
	EditsIgnored *prometheus.CounterVec

	// Размер набора данных после фильтрации
	RecordsShown *prometheus.HistogramVec

	// Saturation: живые графики в реестре и вытесненные из него
	Charts        prometheus.Gauge
	ChartsEvicted prometheus.Counter

	// Saturation: состояние предохранителя (0 closed, 1 half-open, 2 open)
	CircuitBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Незарегистрированные метрики, чтобы не проверять nil
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		FetchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perfdash_fetch_duration_seconds",
			Help:    "Histogram of record fetch latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"variant", "status"}),

		FetchTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "perfdash_fetch_total",
			Help: "Total number of record loads started.",
		}, []string{"variant"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "perfdash_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}),

		EditsIgnored: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "perfdash_edits_ignored_total",
			Help: "Date edits dropped because a load was in flight.",
		}, []string{"variant"}),

		RecordsShown: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perfdash_records_shown",
			Help:    "Number of records in a chart dataset after filtering.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"variant"}),

		Charts: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "perfdash_charts",
			Help: "Number of chart controllers held by the registry.",
		}),

		ChartsEvicted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "perfdash_charts_evicted_total",
			Help: "Chart controllers closed to stay within the registry limit.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "perfdash_circuit_breaker_state",
			Help: "Current state of the records circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"breaker"}),
	}
}
