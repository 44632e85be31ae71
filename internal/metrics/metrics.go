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
// フェッチ層・キャッシュ層・スケジューラから利用する。
type MetricsCollector interface {
	RecordProviderResponse(provider string, statusCode int)
	RecordProviderError(provider string)
	RecordProviderRetry(provider string)
	RecordProviderLatency(provider string, duration time.Duration)
	RecordCacheLookup(kind string, hit bool)
	RecordTaskRun(task string, success bool)
	RecordBuild(success bool, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	providerResponses *prometheus.CounterVec
	providerErrors    *prometheus.CounterVec
	providerRetries   *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	taskRuns          *prometheus.CounterVec
	buildLatency      *prometheus.HistogramVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		providerResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metachan_provider_responses_total",
			Help: "プロバイダ別・HTTPステータスコード別のレスポンス数",
		}, []string{"provider", "status_code"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metachan_provider_errors_total",
			Help: "プロバイダ別のネットワークエラー数",
		}, []string{"provider"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metachan_provider_retries_total",
			Help: "レート制限によるプロバイダ別のリトライ数",
		}, []string{"provider"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metachan_provider_latency_seconds",
			Help:    "プロバイダ呼び出し1回あたりのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metachan_cache_lookups_total",
			Help: "キャッシュ参照の合計数（種別・結果別）",
		}, []string{"kind", "result"}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metachan_task_runs_total",
			Help: "定期タスクの実行回数（タスク・結果別）",
		}, []string{"task", "status"}),
		buildLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metachan_record_build_seconds",
			Help:    "アニメレコード統合処理のレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.providerResponses,
		c.providerErrors,
		c.providerRetries,
		c.providerLatency,
		c.cacheLookups,
		c.taskRuns,
		c.buildLatency,
	)

	return c
}

// RecordProviderResponse はプロバイダのHTTPステータスコードを記録する。
func (c *Collector) RecordProviderResponse(provider string, statusCode int) {
	c.providerResponses.WithLabelValues(provider, strconv.Itoa(statusCode)).Inc()
}

// RecordProviderError はネットワークエラーを記録する。
func (c *Collector) RecordProviderError(provider string) {
	c.providerErrors.WithLabelValues(provider).Inc()
}

// RecordProviderRetry はリトライを記録する。
func (c *Collector) RecordProviderRetry(provider string) {
	c.providerRetries.WithLabelValues(provider).Inc()
}

// RecordProviderLatency はプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCacheLookup はキャッシュ参照の結果を記録する。
func (c *Collector) RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordTaskRun はタスク実行結果を記録する。
func (c *Collector) RecordTaskRun(task string, success bool) {
	c.taskRuns.WithLabelValues(task, statusLabel(success)).Inc()
}

// RecordBuild はレコード統合処理の結果とレイテンシを記録する。
func (c *Collector) RecordBuild(success bool, duration time.Duration) {
	c.buildLatency.WithLabelValues(statusLabel(success)).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Nop は何も記録しないMetricsCollector。テストやCLIで使用する。
type Nop struct{}

var _ MetricsCollector = Nop{}

func (Nop) RecordProviderResponse(string, int) {}
func (Nop) RecordProviderError(string) {}
func (Nop) RecordProviderRetry(string) {}
func (Nop) RecordProviderLatency(string, time.Duration) {}
func (Nop) RecordCacheLookup(string, bool) {}
func (Nop) RecordTaskRun(string, bool) {}
func (Nop) RecordBuild(bool, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
