// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は取り込みパイプラインのメトリクスを収集する。
type Collector struct {
	fetchSuccess   prometheus.Counter
	fetchFail      prometheus.Counter
	parseFail      prometheus.Counter
	entriesParsed  prometheus.Counter
	articlesStored prometheus.Counter
	duplicatesSkip prometheus.Counter
	enrichFallback prometheus.Counter
	notifyFail     prometheus.Counter
	fetchLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realnews_fetch_success_total",
			Help: "フィードフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realnews_fetch_fail_total",
			Help: "フィードフェッチ失敗の合計数",
		}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realnews_parse_fail_total",
			Help: "フィードパース失敗の合計数",
		}),
		entriesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realnews_entries_parsed_total",
			Help: "パースされたフィードエントリの合計数",
		}),
		articlesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realnews_articles_stored_total",
			Help: "新規に保存された記事の合計数",
		}),
		duplicatesSkip: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realnews_duplicates_skipped_total",
			Help: "重複によりスキップされたエントリの合計数",
		}),
		enrichFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realnews_enrich_fallback_total",
			Help: "AI書き換え失敗によるフォールバックの合計数",
		}),
		notifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realnews_notify_fail_total",
			Help: "通知送信失敗の合計数",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "realnews_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.entriesParsed,
		c.articlesStored,
		c.duplicatesSkip,
		c.enrichFallback,
		c.notifyFail,
		c.fetchLatency,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure() {
	c.fetchFail.Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure() {
	c.parseFail.Inc()
}

// RecordEntriesParsed はパースされたエントリ数を記録する。
func (c *Collector) RecordEntriesParsed(count int) {
	c.entriesParsed.Add(float64(count))
}

// RecordArticleStored は新規保存された記事を記録する。
func (c *Collector) RecordArticleStored() {
	c.articlesStored.Inc()
}

// RecordDuplicateSkipped は重複スキップを記録する。
func (c *Collector) RecordDuplicateSkipped() {
	c.duplicatesSkip.Inc()
}

// RecordEnrichFallback はAI書き換えのフォールバックを記録する。
func (c *Collector) RecordEnrichFallback() {
	c.enrichFallback.Inc()
}

// RecordNotifyFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotifyFailure() {
	c.notifyFail.Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// Handler はPrometheusメトリクス公開用のHTTPハンドラーを返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
