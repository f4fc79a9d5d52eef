package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codearena"

// JudgeMetrics tracks remote judge traffic.
type JudgeMetrics struct {
	Batches  *prometheus.CounterVec
	Verdicts *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewJudgeMetrics registers judge collectors on reg.
func NewJudgeMetrics(reg prometheus.Registerer) *JudgeMetrics {
	m := &JudgeMetrics{
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "batches_total",
			Help:      "Judge batches by purpose, language and outcome.",
		}, []string{"purpose", "language", "outcome"}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "verdicts_total",
			Help:      "Aggregated verdicts by purpose and result.",
		}, []string{"purpose", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "batch_duration_seconds",
			Help:      "Time from batch submit until every result is terminal.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"language"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "batches_in_flight",
			Help:      "Batches currently waiting on the judge.",
		}),
	}
	reg.MustRegister(m.Batches, m.Verdicts, m.Latency, m.InFlight)
	return m
}

// ObserveBatch records one finished batch.
func (m *JudgeMetrics) ObserveBatch(purpose, language, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(purpose, language, outcome).Inc()
	m.Latency.WithLabelValues(language).Observe(elapsed.Seconds())
}

// ObserveVerdict records an aggregated verdict.
func (m *JudgeMetrics) ObserveVerdict(purpose string, passed bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if passed {
		result = "accepted"
	}
	m.Verdicts.WithLabelValues(purpose, result).Inc()
}

// HTTPMetrics tracks API traffic.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers HTTP collectors on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.Requests, m.Duration)
	return m
}

// Middleware records every request under its route template.
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.Duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
