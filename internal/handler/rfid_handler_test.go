package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/decaturmakers/gatekeeper/internal/directory"
	"github.com/decaturmakers/gatekeeper/internal/worker/auditlog"
)

// mockDecider はDeciderのモック実装。
type mockDecider struct {
	decideFn func(fob, zone string) directory.Decision
	calls    []string // "fob/zone" の形式
}

func (m *mockDecider) Decide(fob, zone string) directory.Decision {
	m.calls = append(m.calls, fob+"/"+zone)
	if m.decideFn != nil {
		return m.decideFn(fob, zone)
	}
	return directory.Decision{}
}

// mockAuditor はAuditEnqueuerのモック実装。
type mockAuditor struct {
	entries []auditlog.Entry
}

func (m *mockAuditor) Enqueue(entry auditlog.Entry) bool {
	m.entries = append(m.entries, entry)
	return true
}

// stubCollector はMetricsCollectorのテスト用実装。
type stubCollector struct {
	outcomes []string
}

func (c *stubCollector) RecordSyncSuccess(userCount, fobCount int) {}
func (c *stubCollector) RecordSyncFailure(reason string)          {}
func (c *stubCollector) RecordSyncLatency(d time.Duration)        {}
func (c *stubCollector) RecordDecision(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}
func (c *stubCollector) RecordInviteDispatched()       {}
func (c *stubCollector) RecordInviteFailure()          {}
func (c *stubCollector) RecordAuditAppend()            {}
func (c *stubCollector) RecordAuditDrop(reason string) {}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func authorizedDecision(name string, fobs ...string) directory.Decision {
	return directory.Decision{
		Known:          true,
		Authorized:     true,
		Name:           name,
		AuthorizedFobs: fobs,
	}
}

func newRFIDHandler(decider *mockDecider, auditor *mockAuditor, collector *stubCollector, config RFIDHandlerConfig) *RFIDHandler {
	return NewRFIDHandler(decider, auditor, collector, config, newTestLogger())
}

func doAuth(t *testing.T, h *RFIDHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Auth(rec, req)
	return rec
}

func TestAuth_AuthorizedFob(t *testing.T) {
	decider := &mockDecider{
		decideFn: func(fob, zone string) directory.Decision {
			return authorizedDecision("Alice", "1234567890", "2222222222")
		},
	}
	auditor := &mockAuditor{}
	collector := &stubCollector{}
	h := newRFIDHandler(decider, auditor, collector, RFIDHandlerConfig{DefaultZone: "front-door"})

	rec := doAuth(t, h, "/rfid/auth?fob=1234567890&zone=front-door")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		IsAuthorized   *bool    `json:"is_authorized"`
		AuthorizedFobs []string `json:"authorized_fobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.IsAuthorized == nil || !*resp.IsAuthorized {
		t.Errorf("is_authorized = %v, want true", resp.IsAuthorized)
	}
	if len(resp.AuthorizedFobs) != 2 {
		t.Errorf("authorized_fobs = %v, want 2件", resp.AuthorizedFobs)
	}

	if len(collector.outcomes) != 1 || collector.outcomes[0] != "authorized" {
		t.Errorf("outcomes = %v, want [authorized]", collector.outcomes)
	}
}

func TestAuth_DeniedFob(t *testing.T) {
	decider := &mockDecider{
		decideFn: func(fob, zone string) directory.Decision {
			return directory.Decision{Known: true, Authorized: false, AuthorizedFobs: []string{}}
		},
	}
	auditor := &mockAuditor{}
	collector := &stubCollector{}
	h := newRFIDHandler(decider, auditor, collector, RFIDHandlerConfig{DefaultZone: "front-door"})

	rec := doAuth(t, h, "/rfid/auth?fob=9999999999&zone=front-door")

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if string(resp["is_authorized"]) != "false" {
		t.Errorf("is_authorized = %s, want false", resp["is_authorized"])
	}
	if string(resp["authorized_fobs"]) != "[]" {
		t.Errorf("authorized_fobs = %s, want []", resp["authorized_fobs"])
	}
	if collector.outcomes[0] != "denied" {
		t.Errorf("outcome = %v, want denied", collector.outcomes[0])
	}
}

func TestAuth_DirectoryNotReadyReturnsNulls(t *testing.T) {
	decider := &mockDecider{
		decideFn: func(fob, zone string) directory.Decision {
			return directory.Decision{Known: false}
		},
	}
	auditor := &mockAuditor{}
	collector := &stubCollector{}
	h := newRFIDHandler(decider, auditor, collector, RFIDHandlerConfig{DefaultZone: "front-door"})

	rec := doAuth(t, h, "/rfid/auth?fob=1234567890")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (not-readyはエラーではない)", rec.Code, http.StatusOK)
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if string(resp["is_authorized"]) != "null" {
		t.Errorf("is_authorized = %s, want null", resp["is_authorized"])
	}
	if string(resp["authorized_fobs"]) != "null" {
		t.Errorf("authorized_fobs = %s, want null", resp["authorized_fobs"])
	}
	if collector.outcomes[0] != "unknown" {
		t.Errorf("outcome = %v, want unknown", collector.outcomes[0])
	}

	// 判定不能もデフォルトでは監査ログに残す（authorizedはnil）
	if len(auditor.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(auditor.entries))
	}
	if auditor.entries[0].Authorized != nil {
		t.Errorf("entry.Authorized = %v, want nil", auditor.entries[0].Authorized)
	}
}

func TestAuth_MissingFobReturns400(t *testing.T) {
	decider := &mockDecider{}
	h := newRFIDHandler(decider, &mockAuditor{}, &stubCollector{}, RFIDHandlerConfig{DefaultZone: "front-door"})

	rec := doAuth(t, h, "/rfid/auth?zone=front-door")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(decider.calls) != 0 {
		t.Errorf("fobなしで判定が呼ばれた: %v", decider.calls)
	}
}

func TestAuth_DefaultZoneFallback(t *testing.T) {
	decider := &mockDecider{
		decideFn: func(fob, zone string) directory.Decision {
			return authorizedDecision("Alice", "1234567890")
		},
	}
	h := newRFIDHandler(decider, &mockAuditor{}, &stubCollector{}, RFIDHandlerConfig{DefaultZone: "front-door"})

	doAuth(t, h, "/rfid/auth?fob=1234567890")

	if len(decider.calls) != 1 || decider.calls[0] != "1234567890/front-door" {
		t.Errorf("calls = %v, want [1234567890/front-door]", decider.calls)
	}
}

func TestAuth_EnqueuesAuditEntry(t *testing.T) {
	decider := &mockDecider{
		decideFn: func(fob, zone string) directory.Decision {
			return authorizedDecision("Alice", "1234567890")
		},
	}
	auditor := &mockAuditor{}
	h := newRFIDHandler(decider, auditor, &stubCollector{}, RFIDHandlerConfig{DefaultZone: "front-door"})

	doAuth(t, h, "/rfid/auth?fob=1234567890&zone=side-door")

	if len(auditor.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(auditor.entries))
	}
	entry := auditor.entries[0]
	if entry.Fob != "1234567890" {
		t.Errorf("Fob = %q", entry.Fob)
	}
	if entry.Name != "Alice" {
		t.Errorf("Name = %q", entry.Name)
	}
	if entry.Zone != "side-door" {
		t.Errorf("Zone = %q", entry.Zone)
	}
	if entry.Authorized == nil || !*entry.Authorized {
		t.Errorf("Authorized = %v, want true", entry.Authorized)
	}
	if entry.Timestamp.IsZero() {
		t.Error("Timestampが設定されていない")
	}
}

func TestAuth_AuthorizedOnlySkipsDeniedEntries(t *testing.T) {
	calls := 0
	decider := &mockDecider{
		decideFn: func(fob, zone string) directory.Decision {
			calls++
			if calls == 1 {
				return directory.Decision{Known: true, Authorized: false, AuthorizedFobs: []string{}}
			}
			return authorizedDecision("Alice", "1234567890")
		},
	}
	auditor := &mockAuditor{}
	h := newRFIDHandler(decider, auditor, &stubCollector{}, RFIDHandlerConfig{
		DefaultZone:         "front-door",
		AuditAuthorizedOnly: true,
	})

	doAuth(t, h, "/rfid/auth?fob=9999999999")
	doAuth(t, h, "/rfid/auth?fob=1234567890")

	if len(auditor.entries) != 1 {
		t.Fatalf("entries = %d, want 1 (拒否は記録しない)", len(auditor.entries))
	}
	if auditor.entries[0].Fob != "1234567890" {
		t.Errorf("entry.Fob = %q, want 1234567890", auditor.entries[0].Fob)
	}
}
