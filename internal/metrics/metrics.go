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
// セッションゲート、APIクライアント、ルートガードから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(kind, outcome string)
	RecordSessionTransition(reason string, authenticated bool)
	RecordRouteDecision(outcome string)
	ObserveUpstream(endpoint string, status int, elapsed time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts       *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	authenticated      prometheus.Gauge
	routeDecisions     *prometheus.CounterVec
	upstreamRequests   *prometheus.CounterVec
	upstreamLatency    *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supporthub_auth_attempts_total",
			Help: "ログイン・サインアップ試行の合計数",
		}, []string{"kind", "outcome"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supporthub_session_transitions_total",
			Help: "理由別のセッション状態遷移数",
		}, []string{"reason"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "supporthub_session_authenticated",
			Help: "現在認証済みなら1、未認証なら0",
		}),
		routeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supporthub_route_decisions_total",
			Help: "ルートガードの判定結果別の件数",
		}, []string{"outcome"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supporthub_upstream_requests_total",
			Help: "バックエンドAPI呼び出しのエンドポイント・ステータス別件数",
		}, []string{"endpoint", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supporthub_upstream_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.sessionTransitions,
		c.authenticated,
		c.routeDecisions,
		c.upstreamRequests,
		c.upstreamLatency,
	)

	return c
}

// RecordAuthAttempt はログイン・サインアップの試行結果を記録する。
func (c *Collector) RecordAuthAttempt(kind, outcome string) {
	c.authAttempts.WithLabelValues(kind, outcome).Inc()
}

// RecordSessionTransition はセッションの状態遷移を記録し、認証状態ゲージを更新する。
func (c *Collector) RecordSessionTransition(reason string, authenticated bool) {
	c.sessionTransitions.WithLabelValues(reason).Inc()
	if authenticated {
		c.authenticated.Set(1)
	} else {
		c.authenticated.Set(0)
	}
}

// RecordRouteDecision はルートガードの判定を記録する。outcomeは"allow"または"redirect"。
func (c *Collector) RecordRouteDecision(outcome string) {
	c.routeDecisions.WithLabelValues(outcome).Inc()
}

// ObserveUpstream はバックエンドAPI呼び出しのステータスとレイテンシを記録する。
// 通信失敗はstatus 0として"error"ラベルで記録する。
func (c *Collector) ObserveUpstream(endpoint string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	c.upstreamRequests.WithLabelValues(endpoint, code).Inc()
	c.upstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
