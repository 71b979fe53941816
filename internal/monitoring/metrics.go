package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 投递指标
	MessagesDelivered prometheus.Counter
	MessagesSpam      prometheus.Counter
	DeliveryFailures  *prometheus.CounterVec

	// 自动封禁指标
	AutobansIssued prometheus.Counter

	// 未读计数指标
	RecountsTotal   prometheus.Counter
	RecountDuration prometheus.Histogram

	// 通知指标
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
}

// NewMetrics 创建监控指标。
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "privmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "privmail_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		MessagesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "privmail_messages_delivered_total",
			Help: "Total number of logical sends committed",
		}),
		MessagesSpam: promauto.NewCounter(prometheus.CounterOpts{
			Name: "privmail_messages_spam_total",
			Help: "Total number of recipient copies flagged as spam",
		}),
		DeliveryFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "privmail_delivery_failures_total",
				Help: "Total number of failed sends by reason",
			},
			[]string{"reason"},
		),
		AutobansIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "privmail_autobans_issued_total",
			Help: "Total number of automatic spam bans",
		}),
		RecountsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "privmail_unread_recounts_total",
			Help: "Total number of unread counter recomputations",
		}),
		RecountDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "privmail_unread_recount_duration_seconds",
			Help:    "Unread counter recomputation latency",
			Buckets: prometheus.DefBuckets,
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "privmail_notifications_sent_total",
			Help: "Total number of email notifications dispatched",
		}),
		NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "privmail_notifications_failed_total",
			Help: "Total number of email notifications that failed to send",
		}),
	}
}

// Handler 返回 Prometheus 指标的 HTTP 处理器。
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// GinMiddleware 记录 HTTP 请求指标的 gin 中间件。
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		m.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).
			Observe(time.Since(start).Seconds())
	}
}
