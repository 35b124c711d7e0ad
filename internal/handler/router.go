package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/decaturmakers/gatekeeper/internal/metrics"
	"github.com/decaturmakers/gatekeeper/internal/middleware"
)

// webhookUsername はNeonCRMのWebhook設定が使用する固定のBasic認証ユーザー名。
const webhookUsername = "neoncrm"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	RFIDTokens      []string
	WebhookPassword string
	RateLimiter     *middleware.RateLimiter

	// 認可判定
	Decider             Decider
	Auditor             AuditEnqueuer
	Collector           metrics.MetricsCollector
	DefaultZone         string
	AuditAuthorizedOnly bool
	Location            *time.Location

	// ヘルス・メトリクス
	DirectoryStatus DirectoryStatus
	MetricsHandler  http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → (ルートごとの認証) → (レート制限)
//
// /health と /metrics は認証の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	rfidHandler := NewRFIDHandler(deps.Decider, deps.Auditor, deps.Collector, RFIDHandlerConfig{
		DefaultZone:         deps.DefaultZone,
		AuditAuthorizedOnly: deps.AuditAuthorizedOnly,
		Location:            deps.Location,
	}, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.Logger)
	healthHandler := NewHealthHandler(deps.DirectoryStatus)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)

	// --- カードリーダー向けルート ---
	// ミドルウェアスタック: TokenAuth → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTokenAuthMiddleware(deps.RFIDTokens))
		r.Use(deps.RateLimiter.Middleware())

		r.Get("/rfid/auth", rfidHandler.Auth)
	})

	// --- NeonCRM Webhook向けルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBasicAuthMiddleware(webhookUsername, deps.WebhookPassword))

		r.Post("/account/update", webhookHandler.Acknowledge)
		r.Post("/membership/create", webhookHandler.Acknowledge)
		r.Post("/membership/update", webhookHandler.Acknowledge)
		r.Post("/membership/delete", webhookHandler.Acknowledge)
	})

	return r
}
