// Package auditlog はアクセス判定結果をスプレッドシートへ非同期追記するワーカーの実装。
// 監査ログの書き込みは認可判定のレイテンシに影響させないため、
// 有界キューと単一のコンシューマーゴルーチンで構成する。
package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/decaturmakers/gatekeeper/internal/metrics"
)

// SheetWriter は監査ログの書き込みに必要なスプレッドシート操作のインターフェース。
type SheetWriter interface {
	WorksheetID(ctx context.Context, title string) (int64, bool, error)
	DuplicateWorksheet(ctx context.Context, templateTitle, newTitle string) (int64, error)
	AppendRow(ctx context.Context, title string, values []any) error
	UpdateCell(ctx context.Context, title, cellRef string, value any) error
}

// Entry は監査ログの1件分のアクセス判定記録。
type Entry struct {
	Timestamp  time.Time
	Fob        string
	Name       string
	Zone       string
	Authorized *bool // nilはフォブ未登録（判定不能）を表す
}

// Config はWorkerの設定。
type Config struct {
	// QueueSize は監査キューの容量。満杯時は新しいエントリを破棄する。
	QueueSize int
	// LogTemplate は月次ログシートの複製元テンプレート名。
	LogTemplate string
	// ReportTemplate は月次レポートシートの複製元テンプレート名。
	ReportTemplate string
	// Location は月バケットとタイムスタンプの整形に使うタイムゾーン。
	Location *time.Location
}

// Worker は監査ログエントリをキューから取り出しスプレッドシートへ追記するワーカー。
type Worker struct {
	writer    SheetWriter
	cfg       Config
	logger    *slog.Logger
	collector metrics.MetricsCollector

	queue chan Entry

	// ensured はこのプロセスで存在確認済みの月シート名。
	// コンシューマーゴルーチンのみが触るためロック不要。
	ensured map[string]struct{}
}

// NewWorker はWorkerの新しいインスタンスを生成する。
func NewWorker(writer SheetWriter, cfg Config, logger *slog.Logger, collector metrics.MetricsCollector) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Worker{
		writer:    writer,
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		queue:     make(chan Entry, cfg.QueueSize),
		ensured:   make(map[string]struct{}),
	}
}

// Enqueue はエントリをキューへ投入する。ブロックしない。
// キューが満杯の場合はエントリを破棄してfalseを返す。
func (w *Worker) Enqueue(entry Entry) bool {
	select {
	case w.queue <- entry:
		return true
	default:
		w.logger.Warn("監査キューが満杯のためエントリを破棄します",
			slog.String("fob", entry.Fob),
			slog.String("zone", entry.Zone),
		)
		w.collector.RecordAuditDrop("queue_full")
		return false
	}
}

// Run はキューを消費するコンシューマーループ。ctxのキャンセルまでブロックする。
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("監査ログワーカーを開始します",
		slog.Int("queue_size", w.cfg.QueueSize),
	)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("監査ログワーカーを停止します")
			return
		case entry := <-w.queue:
			if err := w.write(ctx, entry); err != nil {
				// 書き込みに失敗したエントリは再試行せず破棄する
				w.logger.Error("監査ログの書き込みに失敗しました",
					slog.String("fob", entry.Fob),
					slog.String("zone", entry.Zone),
					slog.String("error", err.Error()),
				)
				w.collector.RecordAuditDrop("write_failed")
			} else {
				w.collector.RecordAuditAppend()
			}
		}
	}
}

// write は1件のエントリを当月のログシートへ追記する。
func (w *Worker) write(ctx context.Context, entry Entry) error {
	ts := entry.Timestamp.In(w.cfg.Location)
	month := ts.Format("Jan 2006")

	if err := w.ensureMonthSheets(ctx, month); err != nil {
		return err
	}

	var authorized any
	if entry.Authorized != nil {
		authorized = *entry.Authorized
	} else {
		authorized = ""
	}

	row := []any{
		ts.Format("2006-01-02 15:04:05"),
		entry.Fob,
		entry.Name,
		entry.Zone,
		authorized,
	}
	if err := w.writer.AppendRow(ctx, month+" Log", row); err != nil {
		return fmt.Errorf("ログシートへの追記に失敗しました: %w", err)
	}
	return nil
}

// ensureMonthSheets は当月のログシートとレポートシートが存在することを保証する。
// レポートシートは作成時のみB2セルへ月ラベルを書き込む。
func (w *Worker) ensureMonthSheets(ctx context.Context, month string) error {
	if _, ok := w.ensured[month]; ok {
		return nil
	}

	logTitle := month + " Log"
	if _, found, err := w.writer.WorksheetID(ctx, logTitle); err != nil {
		return fmt.Errorf("ログシートの存在確認に失敗しました: %w", err)
	} else if !found {
		if _, err := w.writer.DuplicateWorksheet(ctx, w.cfg.LogTemplate, logTitle); err != nil {
			return fmt.Errorf("ログシートの作成に失敗しました: %w", err)
		}
		w.logger.Info("月次ログシートを作成しました", slog.String("title", logTitle))
	}

	reportTitle := month + " Report"
	if _, found, err := w.writer.WorksheetID(ctx, reportTitle); err != nil {
		return fmt.Errorf("レポートシートの存在確認に失敗しました: %w", err)
	} else if !found {
		if _, err := w.writer.DuplicateWorksheet(ctx, w.cfg.ReportTemplate, reportTitle); err != nil {
			return fmt.Errorf("レポートシートの作成に失敗しました: %w", err)
		}
		if err := w.writer.UpdateCell(ctx, reportTitle, "B2", month); err != nil {
			return fmt.Errorf("レポートシートの月ラベル設定に失敗しました: %w", err)
		}
		w.logger.Info("月次レポートシートを作成しました", slog.String("title", reportTitle))
	}

	w.ensured[month] = struct{}{}
	return nil
}
