// Package handler はHTTPハンドラーとルーティングの実装。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/decaturmakers/gatekeeper/internal/directory"
	"github.com/decaturmakers/gatekeeper/internal/metrics"
	"github.com/decaturmakers/gatekeeper/internal/worker/auditlog"
)

// Decider は認可判定サービスのインターフェース。
type Decider interface {
	Decide(fob, zone string) directory.Decision
}

// AuditEnqueuer は監査ログキューへの投入インターフェース。
type AuditEnqueuer interface {
	Enqueue(entry auditlog.Entry) bool
}

// RFIDHandlerConfig はRFIDHandlerの設定。
type RFIDHandlerConfig struct {
	// DefaultZone はzoneクエリパラメータ省略時に使用するゾーン名。
	DefaultZone string
	// AuditAuthorizedOnly がtrueの場合、許可された判定のみ監査ログに記録する。
	AuditAuthorizedOnly bool
	// Location は監査タイムスタンプのタイムゾーン。
	Location *time.Location
}

// RFIDHandler はカードリーダーからの認可クエリを処理する。
type RFIDHandler struct {
	decider   Decider
	auditor   AuditEnqueuer
	collector metrics.MetricsCollector
	config    RFIDHandlerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewRFIDHandler はRFIDHandlerの新しいインスタンスを生成する。
func NewRFIDHandler(
	decider Decider,
	auditor AuditEnqueuer,
	collector metrics.MetricsCollector,
	config RFIDHandlerConfig,
	logger *slog.Logger,
) *RFIDHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &RFIDHandler{
		decider:   decider,
		auditor:   auditor,
		collector: collector,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// authResponse は認可判定のレスポンスボディ。
// スナップショット未公開時は両フィールドともnullになる。
type authResponse struct {
	IsAuthorized   *bool    `json:"is_authorized"`
	AuthorizedFobs []string `json:"authorized_fobs"`
}

// Auth はGET /rfid/authを処理する。
// 判定は常に現在のスナップショットに対して即座に応答し、同期状態を待たない。
func (h *RFIDHandler) Auth(w http.ResponseWriter, r *http.Request) {
	fob := r.URL.Query().Get("fob")
	if fob == "" {
		http.Error(w, "fob is required", http.StatusBadRequest)
		return
	}

	zone := r.URL.Query().Get("zone")
	if zone == "" {
		zone = h.config.DefaultZone
	}

	decision := h.decider.Decide(fob, zone)

	resp := authResponse{}
	var authorized *bool
	if decision.Known {
		v := decision.Authorized
		authorized = &v
		resp.IsAuthorized = authorized
		resp.AuthorizedFobs = decision.AuthorizedFobs
	}

	h.collector.RecordDecision(decisionOutcome(decision))
	h.audit(fob, zone, decision, authorized)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("レスポンスの書き込みに失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// audit は判定結果を監査キューへ投入する。
// 投入はブロックせず、キュー満杯時の破棄はWorker側で記録される。
func (h *RFIDHandler) audit(fob, zone string, decision directory.Decision, authorized *bool) {
	if h.config.AuditAuthorizedOnly && !decision.Authorized {
		return
	}

	h.auditor.Enqueue(auditlog.Entry{
		Timestamp:  h.now().In(h.config.Location),
		Fob:        fob,
		Name:       decision.Name,
		Zone:       zone,
		Authorized: authorized,
	})
}

func decisionOutcome(decision directory.Decision) string {
	switch {
	case !decision.Known:
		return "unknown"
	case decision.Authorized:
		return "authorized"
	default:
		return "denied"
	}
}
