package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"
)

type MetricsMiddleware struct {
	requestCounter     *metrics.Counter
	responseTimeHist   *metrics.Histogram
	requestSizeHist    *metrics.Histogram
	responseSizeHist   *metrics.Histogram
	statusCodeCounters map[int]*metrics.Counter
}

func NewMetricsMiddleware() *MetricsMiddleware {
	m := &MetricsMiddleware{
		requestCounter:     metrics.GetOrCreateCounter("http_requests_total"),
		responseTimeHist:   metrics.GetOrCreateHistogram("http_response_time_seconds"),
		requestSizeHist:    metrics.GetOrCreateHistogram("http_request_size_bytes"),
		responseSizeHist:   metrics.GetOrCreateHistogram("http_response_size_bytes"),
		statusCodeCounters: make(map[int]*metrics.Counter),
	}

	// Initialize status code counters for common codes
	for _, code := range []int{200, 201, 204, 400, 401, 403, 404, 502, 500} {
		m.statusCodeCounters[code] = metrics.GetOrCreateCounter(
			"http_response_status_total{code=\"" + strconv.Itoa(code) + "\"}",
		)
	}

	return m
}

// WithMetrics records request/response sizes, latency, and status codes.
func (m *MetricsMiddleware) WithMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if c.Request.ContentLength > 0 {
			m.requestSizeHist.Update(float64(c.Request.ContentLength))
		}
		m.requestCounter.Inc()

		c.Next()

		m.responseTimeHist.Update(time.Since(start).Seconds())
		if counter, exists := m.statusCodeCounters[c.Writer.Status()]; exists {
			counter.Inc()
		}
		m.responseSizeHist.Update(float64(c.Writer.Size()))
	}
}

// Handler serves the Prometheus exposition endpoint.
func (m *MetricsMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
		metrics.WritePrometheus(c.Writer, true)
	}
}
