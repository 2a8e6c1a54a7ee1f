package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "staticsite"

// metrics はHTTPリクエストの Prometheus メトリクス
type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    prometheus.Counter
}

// newMetrics はリクエストのコレクターを reg に登録する
// レジストリはサーバーごとに持つため、同一プロセスに複数あっても衝突しない
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time spent answering HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_response_bytes_total",
			Help:      "Response body bytes written.",
		}),
	}
	reg.MustRegister(
		m.requests,
		m.duration,
		m.bytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// middleware はレスポンス後にステータスコードごとの件数と所要時間を記録する
func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		method := c.Request.Method
		m.requests.WithLabelValues(method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n > 0 {
			m.bytes.Add(float64(n))
		}
	}
}
