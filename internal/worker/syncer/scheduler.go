package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SyncRunner は同期サイクル実行のインターフェース。
type SyncRunner interface {
	RunOnce(ctx context.Context) error
}

// Scheduler は同期サイクルのスケジューリングと集約を行う。
// 固定間隔のティッカーと起動直後の1回実行でエンジンを駆動し、
// 実行中のサイクルがある間の追加トリガーは実行せずに吸収する
// （同時に走る同期サイクルは最大1つ）。
type Scheduler struct {
	engine SyncRunner
	logger *slog.Logger

	mu sync.Mutex
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(engine SyncRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		logger: logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.Trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger は同期サイクルの実行を試みる。
// 既にサイクルが実行中の場合は何もせずfalseを返す（トリガーの集約）。
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.mu.TryLock() {
		s.logger.Warn("同期サイクルが実行中のためトリガーをスキップします")
		return false
	}
	defer s.mu.Unlock()

	if err := s.engine.RunOnce(ctx); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	return true
}
