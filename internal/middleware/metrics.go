package middleware

import (
	"net/http"
	"time"

	"github.com/hitoshi/kakeibo/internal/metrics"
)

// NewMetricsMiddleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func NewMetricsMiddleware(mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			mc.RecordHTTPStatus(rec.statusCode)
			mc.RecordRequestLatency(r.Method, time.Since(start))
		})
	}
}
