// Package model はドメインモデルを定義する。
package model

// MinorStatus は未成年かどうかの三値判定を表す。
// 生年月日が不完全な場合はMinorUnknownとなり、
// Checkr招待の対象判定では「明示的にMinorNo」のみが成人として扱われる。
type MinorStatus int

const (
	// MinorUnknown は生年月日の欠損により判定不能であることを示す。
	MinorUnknown MinorStatus = iota
	// MinorNo は成人（18歳以上）であることを示す。
	MinorNo
	// MinorYes は未成年（18歳未満）であることを示す。
	MinorYes
)

// String はMinorStatusの文字列表現を返す。
func (m MinorStatus) String() string {
	switch m {
	case MinorNo:
		return "no"
	case MinorYes:
		return "yes"
	default:
		return "unknown"
	}
}

// User はNeonCRMの1アカウントから導出される会員情報のイミュータブルな値。
// 同期サイクルごとに生の検索結果から再構築され、サイクルをまたぐ同一性は持たない。
type User struct {
	// AccountID はNeonCRM上のアカウント識別子。
	AccountID string
	// Name は表示名。
	Name string
	// Email はメールアドレス。空の場合はメールキーでの検索とCheckr招待が無効になる。
	Email string
	// Fob はRFIDカードのクレデンシャル文字列。空の場合はフォブキーでの検索が無効になる。
	Fob string
	// Zones は現在アクセス要件を満たしているゾーン名の集合。
	Zones map[string]struct{}
	// IsMembershipExpired は同期時点で会員資格が失効しているかどうか。
	IsMembershipExpired bool
	// IsMinor は未成年かどうかの三値判定。
	IsMinor MinorStatus
	// AddedToDMMembers は"Added to dm-members"フィールドの状態（参考情報）。
	AddedToDMMembers bool
	// InvitedToCheckr は"Invited to Checkr"フィールドの状態。
	// Checkr招待ディスパッチのゲートとして使用する。
	InvitedToCheckr bool
}

// HasZone はユーザーが指定ゾーンのアクセス要件を満たしているかを返す。
func (u User) HasZone(zone string) bool {
	_, ok := u.Zones[zone]
	return ok
}

// Record はNeonCRMの検索結果1件分の生データ（フィールド名 → 値）。
// 値が存在しない、またはnullのフィールドは空文字列として扱う。
type Record map[string]string

// Get はフィールド値を返す。キーが存在しない場合は空文字列を返す。
func (r Record) Get(key string) string {
	return r[key]
}
