package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and its
// enrollment domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	enrollmentsTotal *prometheus.CounterVec
	promotionsTotal  prometheus.Counter
	couponsTotal     *prometheus.CounterVec
	attendanceTotal  *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
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

	enrollmentsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_total",
		Help: "Enrollments created, labelled by resulting status",
	}, []string{"status"})

	promotionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "waitlist_promotions_total",
		Help: "Waitlisted enrollments promoted to active",
	})

	couponsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_coupons_total",
		Help: "Discount coupons issued, labelled by rule",
	}, []string{"rule"})

	attendanceTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance records written, labelled by status",
	}, []string{"status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, enrollmentsTotal, promotionsTotal,
		couponsTotal, attendanceTotal, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		enrollmentsTotal: enrollmentsTotal,
		promotionsTotal:  promotionsTotal,
		couponsTotal:     couponsTotal,
		attendanceTotal:  attendanceTotal,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
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
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// CountEnrollment records a created enrollment and its resulting status.
func (m *MetricsService) CountEnrollment(status string) {
	if m == nil {
		return
	}
	m.enrollmentsTotal.WithLabelValues(status).Inc()
}

// CountPromotions records waitlist promotions.
func (m *MetricsService) CountPromotions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.promotionsTotal.Add(float64(n))
}

// CountCoupon records an issued discount coupon.
func (m *MetricsService) CountCoupon(rule string) {
	if m == nil {
		return
	}
	m.couponsTotal.WithLabelValues(rule).Inc()
}

// CountAttendance records an attendance write.
func (m *MetricsService) CountAttendance(status string) {
	if m == nil {
		return
	}
	m.attendanceTotal.WithLabelValues(status).Inc()
}

// CountCacheHit records a cache hit.
func (m *MetricsService) CountCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CountCacheMiss records a cache miss.
func (m *MetricsService) CountCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
