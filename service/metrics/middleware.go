package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware wraps a handler and records request count and
// latency under handlerName, which should be the route pattern rather
// than the raw URL so that path parameters don't explode cardinality.
func HTTPMetricsMiddleware(m *Metrics, handlerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			m.RecordHTTPRequest(handlerName, r.Method, rec.status, time.Since(start).Seconds())
		})
	}
}

// statusRecorder remembers the status code a handler wrote. Handlers
// that never call WriteHeader implicitly respond 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Timer returns a func suitable for defer that reports elapsed seconds
// since start to record:
//
//	defer Timer(time.Now(), func(d float64) { m.RecordAuditDuration(d) })()
func Timer(start time.Time, record func(seconds float64)) func() {
	return func() {
		record(time.Since(start).Seconds())
	}
}
