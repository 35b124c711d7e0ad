// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/decaturmakers/gatekeeper/internal/checkr"
	"github.com/decaturmakers/gatekeeper/internal/config"
	"github.com/decaturmakers/gatekeeper/internal/directory"
	"github.com/decaturmakers/gatekeeper/internal/handler"
	"github.com/decaturmakers/gatekeeper/internal/logger"
	"github.com/decaturmakers/gatekeeper/internal/metrics"
	"github.com/decaturmakers/gatekeeper/internal/middleware"
	"github.com/decaturmakers/gatekeeper/internal/neon"
	"github.com/decaturmakers/gatekeeper/internal/sheets"
	"github.com/decaturmakers/gatekeeper/internal/worker/auditlog"
	"github.com/decaturmakers/gatekeeper/internal/worker/syncer"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "5050"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting gatekeeper",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("checkr_enabled", cfg.CheckrEnabled()),
	)

	return runServe(cfg)
}

// runServe はゲートウェイサーバーモードで起動する。
// 全依存関係をワイヤリングし、同期スケジューラと監査ワーカーをバックグラウンドで
// 起動してからHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. タイムゾーン
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. NeonCRMクライアント
	neonClient := neon.NewClient(
		&http.Client{Timeout: cfg.NeonTimeout},
		slog.Default(),
		neon.Config{
			Endpoint:      cfg.NeonAPIEndpoint,
			OrgID:         cfg.NeonOrgID,
			APIKey:        cfg.NeonAPIKey,
			PageSize:      cfg.NeonPageSize,
			FieldCacheTTL: cfg.FieldCacheTTL,
		},
	)

	// 4. ディレクトリ同期エンジン
	deriver := directory.NewDeriver(directory.DeriverConfig{
		ZoneRequirements: cfg.ZoneRequirements,
		FobField:         cfg.FieldFob,
		DMMembersField:   cfg.FieldDMMembers,
		CheckrField:      cfg.FieldCheckr,
		Location:         loc,
	})
	fetcher := syncer.NewFetcher(neonClient, deriver, slog.Default(), cfg.SearchWindow)

	// Checkr招待ディスパッチはAPIキーが設定されている場合のみ有効
	var dispatcher syncer.InviteDispatcher
	if cfg.CheckrEnabled() {
		checkrClient := checkr.NewClient(
			&http.Client{Timeout: cfg.CheckrTimeout},
			slog.Default(),
			checkr.Config{
				Endpoint: cfg.CheckrAPIEndpoint,
				APIKey:   cfg.CheckrAPIKey,
				Package:  cfg.CheckrPackage,
				PerPage:  cfg.CheckrPerPage,
				WorkLocations: []checkr.WorkLocation{
					{State: cfg.CheckrWorkLocationState, City: cfg.CheckrWorkLocationCity},
				},
			},
		)
		dispatcher = checkr.NewDispatcher(checkrClient, neonClient, cfg.FieldCheckr, slog.Default())
	} else {
		slog.Info("CHECKR_API_KEYが未設定のため、招待ディスパッチを無効化します")
	}

	store := directory.NewStore()
	engine := syncer.NewEngine(fetcher, dispatcher, store, slog.Default(), collector)
	scheduler := syncer.NewScheduler(engine, slog.Default())

	// 5. 監査ログワーカー
	sheetsService, err := sheetsapi.NewService(context.Background(),
		option.WithCredentialsFile(cfg.GoogleCredentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return fmt.Errorf("failed to create sheets service: %w", err)
	}
	sheetClient := sheets.NewClient(sheetsService, cfg.SheetID)
	auditWorker := auditlog.NewWorker(sheetClient, auditlog.Config{
		QueueSize:      cfg.AuditQueueSize,
		LogTemplate:    cfg.AuditLogTemplate,
		ReportTemplate: cfg.AuditReportTemplate,
		Location:       loc,
	}, slog.Default(), collector)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitRFID))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger: slog.Default(),

		RFIDTokens:      cfg.RFIDTokens,
		WebhookPassword: cfg.NeonWebhookPassword,
		RateLimiter:     rateLimiter,

		Decider:             directory.NewService(store),
		Auditor:             auditWorker,
		Collector:           collector,
		DefaultZone:         cfg.DefaultZone,
		AuditAuthorizedOnly: cfg.AuditAuthorizedOnly,
		Location:            loc,

		DirectoryStatus: store,
		MetricsHandler:  metrics.Handler(registry),
	})

	// 7. バックグラウンドワーカーの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go auditWorker.Run(ctx)
	go scheduler.Start(ctx, cfg.SyncInterval)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("gateway server starting",
			slog.String("addr", server.Addr),
			slog.Duration("sync_interval", cfg.SyncInterval),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down gateway server...")

	// ワーカーを先に止め、処理中のリクエストを続けて流し切る
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("gateway server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
