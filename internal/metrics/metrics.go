// Package metrics provides a Prometheus metrics registry for the assistant
// daemon.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when the daemon is embedded
// in another process. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// assistant_inflight_requests
	inFlight prometheus.Gauge

	// assistant_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// assistant_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// assistant_requests_total{kind,cache,status}
	requestsTotal *prometheus.CounterVec

	// assistant_request_duration_seconds{kind,cache}
	requestDuration *prometheus.HistogramVec

	// assistant_upstream_attempts_total{outcome}
	upstreamAttempts *prometheus.CounterVec

	// assistant_upstream_attempt_duration_seconds{outcome}
	upstreamDuration *prometheus.HistogramVec

	// assistant_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// assistant_parse_failures_total{kind}
	parseFailures *prometheus.CounterVec

	// assistant_ratelimit_total{result}
	rateLimitTotal *prometheus.CounterVec

	// assistant_tokens_total{kind,direction}
	tokensTotal *prometheus.CounterVec

	// assistant_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

// New creates a Registry backed by a private Prometheus registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assistant_inflight_requests",
			Help: "Current number of in-flight assistant requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_http_requests_total",
				Help: "Total number of HTTP requests handled by the daemon",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes cache + upstream)",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"route"},
		),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_requests_total",
				Help: "Total assistant queries by kind, cache outcome, and status",
			},
			[]string{"kind", "cache", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_request_duration_seconds",
				Help:    "Assistant query duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind", "cache"},
		),

		upstreamAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_upstream_attempts_total",
				Help: "Outbound OpenRouter attempts by outcome (success, http_*, timeout, network)",
			},
			[]string{"outcome"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_upstream_attempt_duration_seconds",
				Help:    "Duration of individual upstream attempts in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_cache_operations_total",
				Help: "Response cache operations by op (get, set) and result (hit, miss, bypass, ok, error)",
			},
			[]string{"op", "result"},
		),

		parseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_parse_failures_total",
				Help: "Responses delivered raw because structured parsing failed",
			},
			[]string{"kind"},
		),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_ratelimit_total",
				Help: "Outbound rate limiter decisions (allowed, blocked, error)",
			},
			[]string{"result"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_tokens_total",
				Help: "Token usage reported by the upstream API",
			},
			[]string{"kind", "direction"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "assistant_build_info",
				Help: "Build information (constant 1, labelled by version)",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.requestsTotal,
		r.requestDuration,
		r.upstreamAttempts,
		r.upstreamDuration,
		r.cacheOps,
		r.parseFailures,
		r.rateLimitTotal,
		r.tokensTotal,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

// Handler returns the fasthttp handler serving the /metrics endpoint.
func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

// SetBuildInfo records the daemon version as a constant gauge.
func (r *Registry) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records one handled HTTP request.
func (r *Registry) ObserveHTTP(route string, status int, dur time.Duration) {
	r.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// ObserveRequest records one completed assistant query.
// cache is one of "hit", "miss", "bypass"; status is "ok" or an error class.
func (r *Registry) ObserveRequest(kind, cache, status string, dur time.Duration) {
	r.requestsTotal.WithLabelValues(kind, cache, status).Inc()
	r.requestDuration.WithLabelValues(kind, cache).Observe(dur.Seconds())
}

// ObserveUpstreamAttempt records a single outbound attempt.
func (r *Registry) ObserveUpstreamAttempt(outcome string, dur time.Duration) {
	r.upstreamAttempts.WithLabelValues(outcome).Inc()
	r.upstreamDuration.WithLabelValues(outcome).Observe(dur.Seconds())
}

func (r *Registry) CacheGetHit()    { r.cacheOps.WithLabelValues("get", "hit").Inc() }
func (r *Registry) CacheGetMiss()   { r.cacheOps.WithLabelValues("get", "miss").Inc() }
func (r *Registry) CacheGetBypass() { r.cacheOps.WithLabelValues("get", "bypass").Inc() }
func (r *Registry) CacheSetOK()     { r.cacheOps.WithLabelValues("set", "ok").Inc() }
func (r *Registry) CacheSetError()  { r.cacheOps.WithLabelValues("set", "error").Inc() }

// RecordParseFailure counts a response that fell back to raw text.
func (r *Registry) RecordParseFailure(kind string) {
	r.parseFailures.WithLabelValues(kind).Inc()
}

// RecordRateLimit counts an outbound limiter decision.
func (r *Registry) RecordRateLimit(result string) {
	r.rateLimitTotal.WithLabelValues(result).Inc()
}

// AddTokens accumulates upstream token usage for one query.
func (r *Registry) AddTokens(kind string, input, output int) {
	if input > 0 {
		r.tokensTotal.WithLabelValues(kind, "input").Add(float64(input))
	}
	if output > 0 {
		r.tokensTotal.WithLabelValues(kind, "output").Add(float64(output))
	}
}
