// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// ハンドラ・サービス層・変更フィードから利用する。
type Collector struct {
	authOutcome      *prometheus.CounterVec
	tasksCreated     prometheus.Counter
	tasksCompleted   prometheus.Counter
	challengeJoins   prometheus.Counter
	challengeLeaves  prometheus.Counter
	changefeedEvents *prometheus.CounterVec
	wsConnections    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mrlater_auth_attempts_total",
			Help: "認証試行の結果別合計数",
		}, []string{"method", "outcome"}),
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mrlater_tasks_created_total",
			Help: "作成されたタスクの合計数",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mrlater_tasks_completed_total",
			Help: "完了に遷移したタスクの合計数",
		}),
		challengeJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mrlater_challenge_joins_total",
			Help: "チャレンジ参加の合計数",
		}),
		challengeLeaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mrlater_challenge_leaves_total",
			Help: "チャレンジ離脱の合計数",
		}),
		changefeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mrlater_changefeed_events_total",
			Help: "変更フィードで受信したイベントのテーブル別合計数",
		}, []string{"table"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mrlater_ws_connections",
			Help: "現在のWebSocket接続数",
		}),
	}

	reg.MustRegister(
		c.authOutcome,
		c.tasksCreated,
		c.tasksCompleted,
		c.challengeJoins,
		c.challengeLeaves,
		c.changefeedEvents,
		c.wsConnections,
	)

	return c
}

// RecordAuthAttempt は認証試行の結果を記録する。
// methodは password / otp / oauth、outcomeは success / failure。
func (c *Collector) RecordAuthAttempt(method, outcome string) {
	c.authOutcome.WithLabelValues(method, outcome).Inc()
}

// RecordTaskCreated はタスク作成を記録する。
func (c *Collector) RecordTaskCreated() {
	c.tasksCreated.Inc()
}

// RecordTaskCompleted はタスクの完了遷移を記録する。
func (c *Collector) RecordTaskCompleted() {
	c.tasksCompleted.Inc()
}

// RecordChallengeJoined はチャレンジ参加を記録する。
func (c *Collector) RecordChallengeJoined() {
	c.challengeJoins.Inc()
}

// RecordChallengeLeft はチャレンジ離脱を記録する。
func (c *Collector) RecordChallengeLeft() {
	c.challengeLeaves.Inc()
}

// RecordChangeFeedEvent は変更フィードのイベント受信を記録する。
func (c *Collector) RecordChangeFeedEvent(table string) {
	c.changefeedEvents.WithLabelValues(table).Inc()
}

// RecordWSConnect はWebSocket接続の確立を記録する。
func (c *Collector) RecordWSConnect() {
	c.wsConnections.Inc()
}

// RecordWSDisconnect はWebSocket接続の切断を記録する。
func (c *Collector) RecordWSDisconnect() {
	c.wsConnections.Dec()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
