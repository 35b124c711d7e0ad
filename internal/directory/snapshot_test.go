package directory

import (
	"sync"
	"testing"

	"github.com/decaturmakers/gatekeeper/internal/model"
)

func zones(names ...string) map[string]struct{} {
	z := make(map[string]struct{}, len(names))
	for _, n := range names {
		z[n] = struct{}{}
	}
	return z
}

func TestNewSnapshot_IndexesByEmailAndFob(t *testing.T) {
	users := []model.User{
		{AccountID: "1", Name: "Alice", Email: "alice@example.com", Fob: "1111111111"},
		{AccountID: "2", Name: "Bob", Email: "bob@example.com"},
		{AccountID: "3", Name: "Carol", Fob: "3333333333"},
	}

	snap := NewSnapshot(users)

	if len(snap.ByEmail) != 2 {
		t.Errorf("len(ByEmail) = %d, want 2", len(snap.ByEmail))
	}
	if len(snap.ByFob) != 2 {
		t.Errorf("len(ByFob) = %d, want 2", len(snap.ByFob))
	}

	if snap.ByEmail["alice@example.com"].Name != "Alice" {
		t.Errorf("ByEmail[alice] = %q, want Alice", snap.ByEmail["alice@example.com"].Name)
	}
	if snap.ByFob["3333333333"].Name != "Carol" {
		t.Errorf("ByFob[333...] = %q, want Carol", snap.ByFob["3333333333"].Name)
	}

	// メールなしのユーザーはメール索引に含まれない
	if _, ok := snap.ByEmail[""]; ok {
		t.Error("空メールが索引に含まれている")
	}
	if _, ok := snap.ByFob[""]; ok {
		t.Error("空フォブが索引に含まれている")
	}
}

func TestStore_UnknownUntilFirstReplace(t *testing.T) {
	store := NewStore()

	if store.Known() {
		t.Error("Known() = true, want false (初回公開前)")
	}
	if store.Current() != nil {
		t.Error("Current() != nil, want nil (初回公開前)")
	}

	store.Replace(NewSnapshot([]model.User{
		{AccountID: "1", Name: "Alice", Fob: "1111111111"},
	}))

	if !store.Known() {
		t.Error("Known() = false, want true (公開後)")
	}
	if store.Current() == nil {
		t.Fatal("Current() = nil, want non-nil (公開後)")
	}
}

func TestStore_ReplaceSwapsWholesale(t *testing.T) {
	store := NewStore()

	store.Replace(NewSnapshot([]model.User{
		{AccountID: "1", Name: "Alice", Fob: "1111111111"},
	}))
	first := store.Current()

	store.Replace(NewSnapshot([]model.User{
		{AccountID: "2", Name: "Bob", Fob: "2222222222"},
	}))
	second := store.Current()

	if first == second {
		t.Error("Replace 後も同じスナップショットが返されている")
	}
	if _, ok := second.ByFob["1111111111"]; ok {
		t.Error("新スナップショットに旧エントリが混在している")
	}
	if _, ok := second.ByFob["2222222222"]; !ok {
		t.Error("新スナップショットに新エントリが含まれていない")
	}

	// 取得済みの旧スナップショットは置き換え後も完全な形のまま読める
	if _, ok := first.ByFob["1111111111"]; !ok {
		t.Error("旧スナップショットの内容が変化している")
	}
}

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	store := NewStore()
	store.Replace(NewSnapshot([]model.User{
		{AccountID: "1", Name: "Alice", Fob: "1111111111", Zones: zones("front-door")},
	}))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// 読み取り側: 常に完全なスナップショットを観測できること
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Current()
				if snap == nil {
					t.Error("公開後にnilスナップショットを観測した")
					return
				}
				if len(snap.ByFob) != 1 {
					t.Errorf("len(ByFob) = %d, want 1 (部分的なスナップショットを観測した)", len(snap.ByFob))
					return
				}
			}
		}()
	}

	// 書き込み側: 置き換えを繰り返す
	for i := 0; i < 1000; i++ {
		store.Replace(NewSnapshot([]model.User{
			{AccountID: "1", Name: "Alice", Fob: "1111111111", Zones: zones("front-door")},
		}))
	}

	close(stop)
	wg.Wait()
}
