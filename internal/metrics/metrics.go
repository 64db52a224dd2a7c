// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値。
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginError   = "error"
)

// ログアウト結果のラベル値。
const (
	LogoutClosed        = "closed"
	LogoutRecovered     = "recovered"
	LogoutAlreadyClosed = "already_closed"
	LogoutDangling      = "dangling"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、セッション管理、ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(provider, result string)
	RecordLogout(outcome string)
	RecordGeoQuery(duration time.Duration, results int)
	RecordHTTPStatus(statusCode int)
	RecordSnapshotExport(success bool, communities int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	logouts         *prometheus.CounterVec
	geoLatency      prometheus.Histogram
	geoResults      prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	snapshotExports *prometheus.CounterVec
	snapshotSize    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "silverlens_login_total",
			Help: "プロバイダー・結果別のログイン試行数",
		}, []string{"provider", "result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "silverlens_logout_total",
			Help: "結果別のログアウト数",
		}, []string{"outcome"}),
		geoLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "silverlens_geo_query_duration_seconds",
			Help:    "地図範囲検索のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		geoResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "silverlens_geo_query_results",
			Help:    "地図範囲検索の返却件数",
			Buckets: []float64{0, 10, 50, 100, 250, 500, 1000, 2000},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "silverlens_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		snapshotExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "silverlens_snapshot_export_total",
			Help: "コミュニティスナップショット出力の実行数",
		}, []string{"result"}),
		snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "silverlens_snapshot_communities",
			Help: "最新スナップショットに含まれる施設数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.logouts,
		c.geoLatency,
		c.geoResults,
		c.httpStatus,
		c.snapshotExports,
		c.snapshotSize,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(provider, result string) {
	c.logins.WithLabelValues(provider, result).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout(outcome string) {
	c.logouts.WithLabelValues(outcome).Inc()
}

// RecordGeoQuery は地図範囲検索のレイテンシと件数を記録する。
func (c *Collector) RecordGeoQuery(duration time.Duration, results int) {
	c.geoLatency.Observe(duration.Seconds())
	c.geoResults.Observe(float64(results))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSnapshotExport はスナップショット出力結果を記録する。
func (c *Collector) RecordSnapshotExport(success bool, communities int) {
	if !success {
		c.snapshotExports.WithLabelValues("failure").Inc()
		return
	}
	c.snapshotExports.WithLabelValues("success").Inc()
	c.snapshotSize.Set(float64(communities))
}

// Nop は何も記録しないMetricsCollector。メトリクス未使用時やテストで使用する。
type Nop struct{}

func (Nop) RecordLogin(string, string)        {}
func (Nop) RecordLogout(string)               {}
func (Nop) RecordGeoQuery(time.Duration, int) {}
func (Nop) RecordHTTPStatus(int)              {}
func (Nop) RecordSnapshotExport(bool, int)    {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
