// Package directory は会員ディレクトリのドメインロジックを提供する。
// 生のCRMレコードからのUser導出、イミュータブルなスナップショットの
// アトミックな公開、ゾーン認可の判定を含む。
package directory

import (
	"time"

	"github.com/decaturmakers/gatekeeper/internal/model"
)

// adultAge は成人とみなす年齢の下限。
const adultAge = 18

// DeriverConfig はDeriverの設定パラメータ。
type DeriverConfig struct {
	// ZoneRequirements はゾーン名 → そのゾーンに必要なカスタムフィールド名のリスト。
	// 要件が空のゾーンは無条件で許可される。
	ZoneRequirements map[string][]string
	// FobField はフォブ番号を保持するカスタムフィールド名。
	FobField string
	// DMMembersField は"Added to dm-members"チェックボックスのフィールド名。
	DMMembersField string
	// CheckrField は"Invited to Checkr"チェックボックスのフィールド名。
	CheckrField string
	// Location は年齢計算に使用するタイムゾーン。
	Location *time.Location
}

// Deriver は生の検索結果1件をUserに変換する。副作用は持たない。
type Deriver struct {
	cfg DeriverConfig
}

// NewDeriver はDeriverの新しいインスタンスを生成する。
func NewDeriver(cfg DeriverConfig) *Deriver {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Deriver{cfg: cfg}
}

// Derive は生レコードからUserを導出する。
// アカウントIDまたは氏名が欠けているレコードはスキップ対象としてfalseを返す
// （エラーではない）。
func (d *Deriver) Derive(rec model.Record, now time.Time) (model.User, bool) {
	accountID := rec.Get("Account ID")
	name := rec.Get("Full Name (F)")
	if accountID == "" || name == "" {
		return model.User{}, false
	}

	zones := make(map[string]struct{})
	for zone := range d.cfg.ZoneRequirements {
		if d.canAccess(rec, zone) {
			zones[zone] = struct{}{}
		}
	}

	return model.User{
		AccountID:           accountID,
		Name:                name,
		Email:               rec.Get("Email 1"),
		Fob:                 rec.Get(d.cfg.FobField),
		Zones:               zones,
		IsMembershipExpired: d.isExpired(rec, now),
		IsMinor:             d.minorStatus(rec, now),
		AddedToDMMembers:    rec.Get(d.cfg.DMMembersField) != "",
		InvitedToCheckr:     rec.Get(d.cfg.CheckrField) != "",
	}, true
}

// canAccess はレコードがゾーンのアクセス要件を満たしているかを返す。
// 要件は必須フィールドのAND条件であり、すべて真値（非空）の場合のみ許可する。
// 未定義のゾーンは常に不許可。
func (d *Deriver) canAccess(rec model.Record, zone string) bool {
	required, ok := d.cfg.ZoneRequirements[zone]
	if !ok {
		return false
	}
	for _, field := range required {
		if rec.Get(field) == "" {
			return false
		}
	}
	return true
}

// isExpired は会員資格が失効しているかを返す。
// 失効日が欠けている、またはパースできない場合はfalse（失効していない）として扱う。
func (d *Deriver) isExpired(rec model.Record, now time.Time) bool {
	raw := rec.Get("Membership Expiration Date")
	if raw == "" {
		return false
	}
	expiration, err := time.ParseInLocation("2006-01-02", raw, d.cfg.Location)
	if err != nil {
		return false
	}
	return now.After(expiration)
}

// minorStatus は未成年かどうかの三値判定を行う。
// 生年・月・日のいずれかが欠けている、またはパースできない場合はMinorUnknown。
// 年齢は今年の誕生日が未到来の場合のみ1を引く（同年内の記念日判定）。
func (d *Deriver) minorStatus(rec model.Record, now time.Time) model.MinorStatus {
	year, okY := parseIntField(rec.Get("DOB Year"))
	month, okM := parseIntField(rec.Get("DOB Month"))
	day, okD := parseIntField(rec.Get("DOB Day"))
	if !okY || !okM || !okD {
		return model.MinorUnknown
	}

	local := now.In(d.cfg.Location)
	isBeforeBirthday := int(local.Month()) < month ||
		(int(local.Month()) == month && local.Day() < day)

	age := local.Year() - year
	if isBeforeBirthday {
		age--
	}

	if age < adultAge {
		return model.MinorYes
	}
	return model.MinorNo
}

// parseIntField は数値フィールドをパースする。空または非数値はfalseを返す。
func parseIntField(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
