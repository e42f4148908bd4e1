package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// BookingOutcomes 预约结果计数，result: confirmed/no_slots/already_booked/payment_failed/error
	BookingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_booking_outcomes_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"result"},
	)

	// ReminderDispatches 提醒发送计数，result: sent/skipped/failed
	ReminderDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_reminder_dispatches_total",
			Help: "Reminder dispatch attempts by window, recipient and result",
		},
		[]string{"window", "recipient", "result"},
	)

	ReminderTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interview_reminder_tick_seconds",
			Help:    "Duration of one reminder scheduler tick",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(BookingOutcomes)
	prometheus.MustRegister(ReminderDispatches)
	prometheus.MustRegister(ReminderTickDuration)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
