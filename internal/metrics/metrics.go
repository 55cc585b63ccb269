// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 取引操作の種類（transactions_total のopラベル）
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(method string, duration time.Duration)
	RecordTransactionOp(op string)
	RecordUserRegistered()
	RecordLoginFailure()
	RecordStatsLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	transactionOps *prometheus.CounterVec
	usersCreated   prometheus.Counter
	loginFailures  prometheus.Counter
	statsLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kakeibo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kakeibo_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		transactionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kakeibo_transactions_total",
			Help: "操作種別ごとの取引の作成・更新・削除数",
		}, []string{"op"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kakeibo_users_registered_total",
			Help: "登録されたユーザーの合計数",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kakeibo_login_failures_total",
			Help: "ログイン失敗の合計数",
		}),
		statsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kakeibo_dashboard_stats_duration_seconds",
			Help:    "ダッシュボード集計のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.transactionOps,
		c.usersCreated,
		c.loginFailures,
		c.statsLatency,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(method string, duration time.Duration) {
	c.requestLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTransactionOp は取引の作成・更新・削除を記録する。
func (c *Collector) RecordTransactionOp(op string) {
	c.transactionOps.WithLabelValues(op).Inc()
}

// RecordUserRegistered はユーザー登録を記録する。
func (c *Collector) RecordUserRegistered() {
	c.usersCreated.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFailures.Inc()
}

// RecordStatsLatency はダッシュボード集計のレイテンシを記録する。
func (c *Collector) RecordStatsLatency(duration time.Duration) {
	c.statsLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。メトリクス無効時やテストで使用する。
type Nop struct{}

func (Nop) RecordHTTPStatus(int)                       {}
func (Nop) RecordRequestLatency(string, time.Duration) {}
func (Nop) RecordTransactionOp(string)                 {}
func (Nop) RecordUserRegistered()                      {}
func (Nop) RecordLoginFailure()                        {}
func (Nop) RecordStatsLatency(time.Duration)           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
