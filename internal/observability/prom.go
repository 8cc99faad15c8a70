package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// identity provider
	IdentityCallDuration *prometheus.HistogramVec
	IdentityCircuitOpen  prometheus.Gauge

	// user sync outcomes, e.g. create=synced|degraded|failed
	SyncOutcomes *prometheus.CounterVec

	CacheRequests *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "projecthub",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "projecthub",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "projecthub",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "projecthub",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "projecthub",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		IdentityCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "projecthub",
				Subsystem: "identity",
				Name:      "call_duration_seconds",
				Help:      "Identity provider call latency by operation and outcome class.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"op", "class"}, // class=ok|unreachable|forbidden|not_found|conflict|error
		),
		IdentityCircuitOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "projecthub",
				Subsystem: "identity",
				Name:      "circuit_open",
				Help:      "1 while the identity circuit breaker is open or half-open.",
			},
		),
		SyncOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "projecthub",
				Subsystem: "usersync",
				Name:      "outcomes_total",
				Help:      "User synchronization outcomes by flow and result.",
			},
			[]string{"flow", "result"},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "projecthub",
				Subsystem: "cache",
				Name:      "requests_total",
				Help:      "Cache lookups by result.",
			},
			[]string{"result"}, // hit|miss|error
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.IdentityCallDuration, p.IdentityCircuitOpen,
		p.SyncOutcomes, p.CacheRequests,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

func (p *Prom) ObserveSync(flow, result string) {
	p.SyncOutcomes.WithLabelValues(flow, result).Inc()
}

func (p *Prom) ObserveCache(result string) {
	p.CacheRequests.WithLabelValues(result).Inc()
}
