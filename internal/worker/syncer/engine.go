package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/decaturmakers/gatekeeper/internal/directory"
	"github.com/decaturmakers/gatekeeper/internal/metrics"
	"github.com/decaturmakers/gatekeeper/internal/model"
)

// 同期サイクルの検証エラー。どちらの場合も公開を中止し、前回のスナップショットを維持する。
var (
	// ErrNoUsers はNeonCRMが空のユーザーリストを返した場合の検証エラー。
	ErrNoUsers = errors.New("NeonCRMからユーザーが1件も返されませんでした")
	// ErrNoFobs は1件以上のユーザーが返されたがフォブを持つユーザーが1人もいない場合の検証エラー。
	ErrNoFobs = errors.New("NeonCRMはユーザーを返しましたが、フォブを持つユーザーがいません")
)

// UserFetcher はユーザーリスト取得のインターフェース。
type UserFetcher interface {
	FetchAll(ctx context.Context, now time.Time) ([]model.User, error)
}

// InviteDispatcher はCheckr招待ワークフロー実行のインターフェース。
type InviteDispatcher interface {
	Dispatch(ctx context.Context, user model.User) error
}

// Engine は1回の同期サイクルを実行する。
//
// 手順: 全ユーザーの取得 → 検証（空リスト・フォブゼロは公開中止）→
// 招待対象ユーザーへのディスパッチ → スナップショットのアトミックな公開。
// フェッチエラーと検証エラーはサイクル全体を中止し、前回のスナップショットが
// そのまま有効であり続ける。ディスパッチエラーは対象ユーザーに限定され、
// サイクルの継続と公開を妨げない。
type Engine struct {
	fetcher    UserFetcher
	dispatcher InviteDispatcher // nilの場合は招待ディスパッチ無効
	store      *directory.Store
	logger     *slog.Logger
	collector  metrics.MetricsCollector
	now        func() time.Time
}

// NewEngine はEngineの新しいインスタンスを生成する。
// dispatcherにnilを渡すとCheckr招待ディスパッチを無効化する。
func NewEngine(
	fetcher UserFetcher,
	dispatcher InviteDispatcher,
	store *directory.Store,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Engine {
	return &Engine{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
		collector:  collector,
		now:        time.Now,
	}
}

// RunOnce は1回の同期サイクルを実行する。
func (e *Engine) RunOnce(ctx context.Context) error {
	start := time.Now()
	now := e.now()

	e.logger.Info("ディレクトリ同期を開始します")

	users, err := e.fetcher.FetchAll(ctx, now)
	if err != nil {
		e.collector.RecordSyncFailure("fetch_error")
		return fmt.Errorf("ユーザーリストの取得に失敗しました: %w", err)
	}

	if len(users) == 0 {
		e.collector.RecordSyncFailure("no_users")
		return ErrNoUsers
	}

	snapshot := directory.NewSnapshot(users)
	if len(snapshot.ByFob) == 0 {
		e.collector.RecordSyncFailure("no_fobs")
		return ErrNoFobs
	}

	if e.dispatcher != nil {
		e.dispatchInvites(ctx, users)
	}

	e.store.Replace(snapshot)

	elapsed := time.Since(start)
	e.collector.RecordSyncSuccess(len(users), len(snapshot.ByFob))
	e.collector.RecordSyncLatency(elapsed)

	e.logger.Info("ディレクトリ同期が完了しました",
		slog.Int("user_count", len(users)),
		slog.Int("fob_count", len(snapshot.ByFob)),
		slog.Duration("elapsed", elapsed),
	)

	return nil
}

// dispatchInvites は招待対象の全ユーザーにCheckr招待ワークフローを実行する。
// 1ユーザーの失敗はログに記録し、残りのユーザーの処理を続行する。
func (e *Engine) dispatchInvites(ctx context.Context, users []model.User) {
	for _, user := range users {
		if !eligibleForInvite(user) {
			continue
		}
		if err := e.dispatcher.Dispatch(ctx, user); err != nil {
			e.collector.RecordInviteFailure()
			e.logger.Error("Checkr招待の送信に失敗しました",
				slog.String("email", user.Email),
				slog.String("account_id", user.AccountID),
				slog.String("error", err.Error()),
			)
			continue
		}
		e.collector.RecordInviteDispatched()
	}
}

// eligibleForInvite はユーザーがCheckr招待の対象かどうかを返す。
// 未招待かつメールアドレスがあり、かつ明示的に成人（MinorNo）の場合のみ対象。
// MinorUnknownは対象外（未成年や年齢不明のユーザーを招待しない側に倒す）。
func eligibleForInvite(user model.User) bool {
	return !user.InvitedToCheckr &&
		user.Email != "" &&
		user.IsMinor == model.MinorNo
}
