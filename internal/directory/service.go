package directory

import "sort"

// Decision は1回の認可判定の結果。
type Decision struct {
	// Known はスナップショットが公開済みかどうか。
	// falseの場合、AuthorizedとAuthorizedFobsは未定義（許可でも拒否でもない）。
	Known bool
	// Authorized はフォブが指定ゾーンへのアクセスを許可されているかどうか。
	Authorized bool
	// Name はフォブに対応する会員の表示名。未登録フォブの場合は空。
	Name string
	// AuthorizedFobs は指定ゾーンへのアクセスを現在許可されている全フォブのリスト。
	// リーダー端末がオフライン運用向けのローカル許可リストとしてキャッシュする想定。
	AuthorizedFobs []string
}

// Service はフォブとゾーンに対する認可クエリに応答する。
// 現在のスナップショットの読み取り以外に副作用は持たない。
type Service struct {
	store *Store
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Decide は「フォブfobはゾーンzoneにアクセスできるか」を判定する。
// スナップショット未公開の場合はKnown=falseを返す（拒否とは区別される）。
func (s *Service) Decide(fob, zone string) Decision {
	snap := s.store.Current()
	if snap == nil {
		return Decision{Known: false}
	}

	decision := Decision{Known: true}

	if user, ok := snap.ByFob[fob]; ok {
		decision.Name = user.Name
		decision.Authorized = user.HasZone(zone)
	}

	authorizedFobs := make([]string, 0, len(snap.ByFob))
	for f, user := range snap.ByFob {
		if user.HasZone(zone) {
			authorizedFobs = append(authorizedFobs, f)
		}
	}
	// マップ順による揺らぎを避けるため安定した順序で返す
	sort.Strings(authorizedFobs)
	decision.AuthorizedFobs = authorizedFobs

	return decision
}
