// Package syncer は会員ディレクトリのバックグラウンド同期処理を提供する。
// ページネーションフェッチ、同期エンジン、集約スケジューラを含む。
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/decaturmakers/gatekeeper/internal/directory"
	"github.com/decaturmakers/gatekeeper/internal/model"
	"github.com/decaturmakers/gatekeeper/internal/neon"
)

// AccountSearcher はフェッチャーが必要とするNeonCRM操作のインターフェース。
// neon.Clientの部分集合として定義する。
type AccountSearcher interface {
	// CustomFields はカスタムフィールドスキーマをフィールド名で索引して返す。
	CustomFields(ctx context.Context) (map[string]neon.Field, error)
	// SearchActiveMembersPage は1ページ分の検索を実行し、最終ページ番号と生レコードを返す。
	SearchActiveMembersPage(ctx context.Context, cutoff time.Time, fieldIDs []int, page int) (int, []model.Record, error)
}

// Fetcher は全ページの検索結果を取得し、Userリストに変換する。
// 1ページでも転送・HTTPエラーが発生した場合はフェッチ全体を中断する
// （部分的な成功での継続はしない）。
type Fetcher struct {
	crm          AccountSearcher
	deriver      *directory.Deriver
	logger       *slog.Logger
	searchWindow time.Duration
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// searchWindowは検索対象とする会員資格失効日の遡り幅（慣例的に7日）。
func NewFetcher(crm AccountSearcher, deriver *directory.Deriver, logger *slog.Logger, searchWindow time.Duration) *Fetcher {
	return &Fetcher{
		crm:          crm,
		deriver:      deriver,
		logger:       logger,
		searchWindow: searchWindow,
	}
}

// FetchAll は条件に一致する全レコードをページ順に取得し、Userリストを返す。
// 必須キーのないレコードは黙ってスキップする。
func (f *Fetcher) FetchAll(ctx context.Context, now time.Time) ([]model.User, error) {
	cutoff := now.Add(-f.searchWindow)

	fields, err := f.crm.CustomFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("カスタムフィールドスキーマの取得に失敗しました: %w", err)
	}

	fieldIDs := make([]int, 0, len(fields))
	for _, field := range fields {
		fieldIDs = append(fieldIDs, field.ID)
	}
	// リクエストの再現性のためID順に揃える
	sort.Ints(fieldIDs)

	var users []model.User
	skipped := 0

	currentPage := 0
	lastPage := 0
	for currentPage <= lastPage {
		var records []model.Record
		lastPage, records, err = f.crm.SearchActiveMembersPage(ctx, cutoff, fieldIDs, currentPage)
		if err != nil {
			return nil, fmt.Errorf("ページ %d の取得に失敗しました: %w", currentPage, err)
		}

		for _, rec := range records {
			user, ok := f.deriver.Derive(rec, now)
			if !ok {
				skipped++
				continue
			}
			users = append(users, user)
		}

		currentPage++
	}

	if skipped > 0 {
		f.logger.Warn("必須キーのないレコードをスキップしました",
			slog.Int("skipped", skipped),
		)
	}

	return users, nil
}
