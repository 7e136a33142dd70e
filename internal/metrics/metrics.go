// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層や外部APIクライアントから利用する。
type MetricsCollector interface {
	RecordImport(outcome string, imported, rejected int)
	RecordInvitation(action string)
	RecordEmail(kind, outcome string)
	RecordWeatherRequest(endpoint, outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	imports         *prometheus.CounterVec
	importedRows    prometheus.Counter
	rejectedRows    prometheus.Counter
	invitations     *prometheus.CounterVec
	emails          *prometheus.CounterVec
	weatherRequests *prometheus.CounterVec
	weatherLatency  prometheus.Histogram
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimbo_rainfall_imports_total",
			Help: "降水データ取り込みの結果別の合計数",
		}, []string{"outcome"}),
		importedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbo_rainfall_imported_rows_total",
			Help: "取り込まれた降水記録の合計数",
		}),
		rejectedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbo_rainfall_rejected_rows_total",
			Help: "正規化できずに破棄された行の合計数",
		}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimbo_invitations_total",
			Help: "招待の操作別の合計数",
		}, []string{"action"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimbo_emails_total",
			Help: "メール送信の種類・結果別の合計数",
		}, []string{"kind", "outcome"}),
		weatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimbo_weather_requests_total",
			Help: "天気APIリクエストのエンドポイント・結果別の合計数",
		}, []string{"endpoint", "outcome"}),
		weatherLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nimbo_weather_latency_seconds",
			Help:    "天気APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimbo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.imports,
		c.importedRows,
		c.rejectedRows,
		c.invitations,
		c.emails,
		c.weatherRequests,
		c.weatherLatency,
		c.httpStatus,
	)

	return c
}

// RecordImport は取り込み結果と行数を記録する。
func (c *Collector) RecordImport(outcome string, imported, rejected int) {
	c.imports.WithLabelValues(outcome).Inc()
	c.importedRows.Add(float64(imported))
	c.rejectedRows.Add(float64(rejected))
}

// RecordInvitation は招待の作成・承諾・辞退を記録する。
func (c *Collector) RecordInvitation(action string) {
	c.invitations.WithLabelValues(action).Inc()
}

// RecordEmail はメール送信結果を記録する。
func (c *Collector) RecordEmail(kind, outcome string) {
	c.emails.WithLabelValues(kind, outcome).Inc()
}

// RecordWeatherRequest は天気APIリクエストの結果とレイテンシを記録する。
func (c *Collector) RecordWeatherRequest(endpoint, outcome string, duration time.Duration) {
	c.weatherRequests.WithLabelValues(endpoint, outcome).Inc()
	c.weatherLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

// RecordImport は何もしない。
func (Nop) RecordImport(string, int, int) {}

// RecordInvitation は何もしない。
func (Nop) RecordInvitation(string) {}

// RecordEmail は何もしない。
func (Nop) RecordEmail(string, string) {}

// RecordWeatherRequest は何もしない。
func (Nop) RecordWeatherRequest(string, string, time.Duration) {}

// RecordHTTPStatus は何もしない。
func (Nop) RecordHTTPStatus(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
