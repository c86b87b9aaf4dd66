// Package metrics содержит метрики Prometheus сервиса жилищной очереди.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "housing"

// Metrics объединяет коллекторы сервиса и собственный реестр.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	StatusTransitions    *prometheus.CounterVec
	NotificationsSent    *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	PriorityScore        prometheus.Histogram
	QueueSize            prometheus.Gauge
	WaitingYearsAccrued  prometheus.Counter
}

// New создаёт метрики в отдельном реестре.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "code"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StatusTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Total number of committed application status transitions",
			},
			[]string{"from", "to"},
		),
		NotificationsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Total number of notifications accepted by the delivery system",
			},
			[]string{"kind"},
		),
		NotificationFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Total number of notifications the delivery system did not accept",
			},
			[]string{"kind"},
		),
		PriorityScore: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "priority_score",
				Help:      "Distribution of computed priority scores",
				Buckets:   prometheus.LinearBuckets(0, 20, 10),
			},
		),
		QueueSize: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_size",
				Help:      "Number of applications in queue as of the last snapshot",
			},
		),
		WaitingYearsAccrued: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "waiting_years_accrued_total",
				Help:      "Total number of applications whose waiting years were increased",
			},
		),
	}
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware считает запросы и их длительность по шаблону маршрута chi.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
