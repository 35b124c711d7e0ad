// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期エンジン、ハンドラー、監査ログワーカーから利用する。
type MetricsCollector interface {
	RecordSyncSuccess(userCount, fobCount int)
	RecordSyncFailure(reason string)
	RecordSyncLatency(duration time.Duration)
	RecordDecision(outcome string)
	RecordInviteDispatched()
	RecordInviteFailure()
	RecordAuditAppend()
	RecordAuditDrop(reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess  prometheus.Counter
	syncFail     *prometheus.CounterVec
	syncLatency  prometheus.Histogram
	usersLoaded  prometheus.Gauge
	fobsLoaded   prometheus.Gauge
	decisions    *prometheus.CounterVec
	inviteOK     prometheus.Counter
	inviteFail   prometheus.Counter
	auditAppends prometheus.Counter
	auditDrops   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_sync_success_total",
			Help: "ディレクトリ同期サイクル成功の合計数",
		}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_sync_fail_total",
			Help: "ディレクトリ同期サイクル失敗の合計数（理由別）",
		}, []string{"reason"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_sync_latency_seconds",
			Help:    "同期サイクルのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		usersLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_users_loaded",
			Help: "最後に成功した同期で読み込まれたユーザー数",
		}),
		fobsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_fobs_loaded",
			Help: "最後に成功した同期でフォブを持つユーザー数",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_decisions_total",
			Help: "認可判定の合計数（結果別）",
		}, []string{"outcome"}),
		inviteOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_checkr_invites_total",
			Help: "Checkr招待ディスパッチ成功の合計数",
		}),
		inviteFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_checkr_invite_fail_total",
			Help: "Checkr招待ディスパッチ失敗の合計数",
		}),
		auditAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_audit_rows_total",
			Help: "監査ログに記録された行の合計数",
		}),
		auditDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_audit_drops_total",
			Help: "破棄された監査ログエントリの合計数（理由別）",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.syncLatency,
		c.usersLoaded,
		c.fobsLoaded,
		c.decisions,
		c.inviteOK,
		c.inviteFail,
		c.auditAppends,
		c.auditDrops,
	)

	return c
}

// RecordSyncSuccess は同期サイクル成功と読み込み件数を記録する。
func (c *Collector) RecordSyncSuccess(userCount, fobCount int) {
	c.syncSuccess.Inc()
	c.usersLoaded.Set(float64(userCount))
	c.fobsLoaded.Set(float64(fobCount))
}

// RecordSyncFailure は同期サイクル失敗を理由別に記録する。
func (c *Collector) RecordSyncFailure(reason string) {
	c.syncFail.WithLabelValues(reason).Inc()
}

// RecordSyncLatency は同期サイクルのレイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordDecision は認可判定の結果を記録する。
// outcomeは "authorized"、"denied"、"unknown" のいずれか。
func (c *Collector) RecordDecision(outcome string) {
	c.decisions.WithLabelValues(outcome).Inc()
}

// RecordInviteDispatched はCheckr招待ディスパッチ成功を記録する。
func (c *Collector) RecordInviteDispatched() {
	c.inviteOK.Inc()
}

// RecordInviteFailure はCheckr招待ディスパッチ失敗を記録する。
func (c *Collector) RecordInviteFailure() {
	c.inviteFail.Inc()
}

// RecordAuditAppend は監査ログ行の記録成功を記録する。
func (c *Collector) RecordAuditAppend() {
	c.auditAppends.Inc()
}

// RecordAuditDrop は監査ログエントリの破棄を理由別に記録する。
// reasonは "queue_full" または "write_failed"。
func (c *Collector) RecordAuditDrop(reason string) {
	c.auditDrops.WithLabelValues(reason).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
