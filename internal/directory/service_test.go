package directory

import (
	"testing"

	"github.com/decaturmakers/gatekeeper/internal/model"
)

func TestService_Decide_UnknownBeforeFirstSync(t *testing.T) {
	svc := NewService(NewStore())

	decision := svc.Decide("1234567890", "front-door")

	if decision.Known {
		t.Error("Known = true, want false (同期前)")
	}
	if decision.Authorized {
		t.Error("Authorized = true, want false")
	}
	if decision.AuthorizedFobs != nil {
		t.Errorf("AuthorizedFobs = %v, want nil", decision.AuthorizedFobs)
	}
	if decision.Name != "" {
		t.Errorf("Name = %q, want empty", decision.Name)
	}
}

func TestService_Decide_AuthorizedFobAndZone(t *testing.T) {
	store := NewStore()
	store.Replace(NewSnapshot([]model.User{
		{AccountID: "1", Name: "Alice", Fob: "1234567890", Zones: zones("front-door")},
		{AccountID: "2", Name: "Bob", Fob: "2222222222", Zones: zones("front-door", "side-door")},
		{AccountID: "3", Name: "Carol", Fob: "3333333333", Zones: zones()},
	}))
	svc := NewService(store)

	decision := svc.Decide("1234567890", "front-door")

	if !decision.Known {
		t.Fatal("Known = false, want true")
	}
	if !decision.Authorized {
		t.Error("Authorized = false, want true")
	}
	if decision.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", decision.Name)
	}
	// front-doorを持つのはAliceとBobの2フォブ
	if len(decision.AuthorizedFobs) != 2 {
		t.Fatalf("len(AuthorizedFobs) = %d, want 2", len(decision.AuthorizedFobs))
	}
	if decision.AuthorizedFobs[0] != "1234567890" || decision.AuthorizedFobs[1] != "2222222222" {
		t.Errorf("AuthorizedFobs = %v, want [1234567890 2222222222]", decision.AuthorizedFobs)
	}
}

func TestService_Decide_DeniedForZoneNotHeld(t *testing.T) {
	store := NewStore()
	store.Replace(NewSnapshot([]model.User{
		{AccountID: "1", Name: "Alice", Fob: "1234567890", Zones: zones("front-door")},
	}))
	svc := NewService(store)

	decision := svc.Decide("1234567890", "side-door")

	if !decision.Known {
		t.Fatal("Known = false, want true")
	}
	if decision.Authorized {
		t.Error("Authorized = true, want false")
	}
	// 名前は認可結果に関係なく解決される
	if decision.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", decision.Name)
	}
	// side-doorの許可リストにこのフォブは含まれない
	for _, fob := range decision.AuthorizedFobs {
		if fob == "1234567890" {
			t.Error("AuthorizedFobs に未許可のフォブが含まれている")
		}
	}
}

func TestService_Decide_UnknownFob(t *testing.T) {
	store := NewStore()
	store.Replace(NewSnapshot([]model.User{
		{AccountID: "1", Name: "Alice", Fob: "1234567890", Zones: zones("front-door")},
	}))
	svc := NewService(store)

	decision := svc.Decide("9999999999", "front-door")

	if !decision.Known {
		t.Fatal("Known = false, want true")
	}
	if decision.Authorized {
		t.Error("Authorized = true, want false")
	}
	if decision.Name != "" {
		t.Errorf("Name = %q, want empty (未登録フォブ)", decision.Name)
	}
	// 未登録フォブでも許可リストは返す
	if len(decision.AuthorizedFobs) != 1 {
		t.Errorf("len(AuthorizedFobs) = %d, want 1", len(decision.AuthorizedFobs))
	}
}
