package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector feeds the counters exposed on /metrics. Solves are
// synchronous and can run for seconds, so the in-flight gauge matters as much
// as the totals when judging whether the service is saturated.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	inflight     *atomic.Int64
}

func NewMetricsCollector(requestCount, errorCount, inflight *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		inflight:     inflight,
	}
}

// Middleware counts every request and each error response. Rejected solves
// count as errors too: a 422 underdetermined system usually means a broken
// diagnostic configuration upstream, and operators want to see those spike.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)
		mc.inflight.Add(1)
		defer mc.inflight.Add(-1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
	})
}
