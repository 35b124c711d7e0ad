package directory

import (
	"sync/atomic"

	"github.com/decaturmakers/gatekeeper/internal/model"
)

// Snapshot は公開済みの会員ディレクトリ状態。
// 同じUserリストから構築されたメール索引とフォブ索引を持つ。
// 公開後は一切変更しない（丸ごと置き換えのみ）。
type Snapshot struct {
	ByEmail map[string]model.User
	ByFob   map[string]model.User
}

// NewSnapshot はUserリストから両索引を構築する。
// メールやフォブが空のユーザーは該当する索引から除外される。
func NewSnapshot(users []model.User) *Snapshot {
	snap := &Snapshot{
		ByEmail: make(map[string]model.User),
		ByFob:   make(map[string]model.User),
	}
	for _, u := range users {
		if u.Email != "" {
			snap.ByEmail[u.Email] = u
		}
		if u.Fob != "" {
			snap.ByFob[u.Fob] = u
		}
	}
	return snap
}

// Store はスナップショットのアトミックな保持と置き換えを行う。
// 書き込みは同期エンジンのみ、読み取りは判定サービスが行う。
// 読み取り側はロックなしで常に完全なスナップショット（または未公開を示すnil）を観測する。
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore は未公開状態のStoreを生成する。
func NewStore() *Store {
	return &Store{}
}

// Current は現在のスナップショットを返す。
// 最初の同期が成功するまではnilを返す（known=false相当）。
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Known は1回以上の同期が成功しスナップショットが存在するかを返す。
func (s *Store) Known() bool {
	return s.current.Load() != nil
}

// Replace はスナップショットをアトミックに置き換える。
// 以前のスナップショットはその瞬間から参照されなくなる。
func (s *Store) Replace(snap *Snapshot) {
	s.current.Store(snap)
}
