package checkr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/decaturmakers/gatekeeper/internal/model"
)

// InviteAPI はディスパッチャが必要とするCheckr API操作のインターフェース。
type InviteAPI interface {
	FindCandidate(ctx context.Context, email string) (string, bool, error)
	CreateCandidate(ctx context.Context, email string) (string, error)
	HasInvitation(ctx context.Context, candidateID string) (bool, error)
	CreateInvitation(ctx context.Context, candidateID string) error
}

// CheckboxSetter はNeonCRMのチェックボックス更新のインターフェース。
// neon.Clientの部分集合として定義する。
type CheckboxSetter interface {
	SetCheckbox(ctx context.Context, accountID, fieldName string, checked bool) error
}

// Dispatcher はCheckr招待の冪等なワークフローを実行する。
//
// 手順:
//  1. メールアドレスで既存候補者を検索し、なければ作成する。
//  2. 候補者に既存の招待があれば新規作成をスキップする（招待済みは成功として扱う）。
//  3. なければ新規招待を作成する。
//  4. 成功時にNeonCRMの"招待済み"チェックボックスを更新する。
//
// チェックボックスが招待状態の唯一の永続記録であり、招待作成とチェックボックス更新の
// 間でクラッシュした場合は次サイクルの手順2が既存招待を検出して安全に再試行される。
type Dispatcher struct {
	api       InviteAPI
	neon      CheckboxSetter
	fieldName string
	logger    *slog.Logger
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// fieldNameはNeonCRMの"Invited to Checkr"チェックボックスのフィールド名。
func NewDispatcher(api InviteAPI, neon CheckboxSetter, fieldName string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		api:       api,
		neon:      neon,
		fieldName: fieldName,
		logger:    logger,
	}
}

// Dispatch は1ユーザーに対する招待ワークフローを実行する。
// 繰り返し呼び出しても安全（冪等）。
// 対象ユーザーの適格性判定（未招待・メールあり・明示的に成人）は呼び出し元が行う。
func (d *Dispatcher) Dispatch(ctx context.Context, user model.User) error {
	if user.Email == "" {
		return fmt.Errorf("メールアドレスのないユーザーは招待できません (account_id=%s)", user.AccountID)
	}

	candidateID, found, err := d.api.FindCandidate(ctx, user.Email)
	if err != nil {
		return err
	}
	if !found {
		candidateID, err = d.api.CreateCandidate(ctx, user.Email)
		if err != nil {
			return err
		}
	}

	invited, err := d.api.HasInvitation(ctx, candidateID)
	if err != nil {
		return err
	}

	if invited {
		d.logger.Info("既にCheckrに招待済みのため、NeonCRMのフィールドのみ更新します",
			slog.String("email", user.Email),
		)
		if err := d.neon.SetCheckbox(ctx, user.AccountID, d.fieldName, true); err != nil {
			return err
		}
		d.logger.Info("招待済みフィールドを更新しました",
			slog.String("email", user.Email),
		)
		return nil
	}

	d.logger.Info("Checkrに招待します",
		slog.String("email", user.Email),
	)
	if err := d.api.CreateInvitation(ctx, candidateID); err != nil {
		return err
	}

	d.logger.Info("Checkrに招待しました。NeonCRMのフィールドを更新します",
		slog.String("email", user.Email),
	)
	if err := d.neon.SetCheckbox(ctx, user.AccountID, d.fieldName, true); err != nil {
		return err
	}
	d.logger.Info("招待済みフィールドを更新しました",
		slog.String("email", user.Email),
	)

	return nil
}
