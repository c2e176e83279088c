package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	withdrawalsCompleted *prometheus.CounterVec
	notificationsQueued  *prometheus.CounterVec
	requestsExpired      prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	withdrawalsCompleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_completed_total",
		Help: "Total completed student withdrawals by verification method",
	}, []string{"method"})

	notificationsQueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_enqueued_total",
		Help: "Total guardian notifications enqueued by channel",
	}, []string{"channel"})

	requestsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "withdrawal_requests_expired_total",
		Help: "Total withdrawal requests swept to EXPIRED",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, withdrawalsCompleted, notificationsQueued, requestsExpired, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		withdrawalsCompleted: withdrawalsCompleted,
		notificationsQueued:  notificationsQueued,
		requestsExpired:      requestsExpired,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// IncWithdrawalCompleted counts one completed withdrawal.
func (m *MetricsService) IncWithdrawalCompleted(method string) {
	if m == nil {
		return
	}
	m.withdrawalsCompleted.WithLabelValues(method).Inc()
}

// IncNotificationEnqueued counts one enqueued notification.
func (m *MetricsService) IncNotificationEnqueued(channel string) {
	if m == nil {
		return
	}
	m.notificationsQueued.WithLabelValues(channel).Inc()
}

// AddRequestsExpired counts swept withdrawal requests.
func (m *MetricsService) AddRequestsExpired(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.requestsExpired.Add(float64(count))
}
