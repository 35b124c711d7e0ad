package app

import (
	"bytes"
	"testing"
)

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("NEON_API_KEY", "")
	t.Setenv("NEON_PASSWORD", "")
	t.Setenv("RFID_SHEET_ID", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

// TestRun_ServeCommand_RequiresSheetsCredentials はserveコマンドが起動時に
// Google Sheetsの認証情報を読み込もうとすることを検証する。
// テスト環境には認証ファイルが存在しないため、エラーが返ることを期待する。
func TestRun_ServeCommand_RequiresSheetsCredentials(t *testing.T) {
	t.Setenv("NEON_API_KEY", "test-api-key")
	t.Setenv("NEON_PASSWORD", "test-webhook-password")
	t.Setenv("RFID_SHEET_ID", "test-sheet-id")
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "testdata/does-not-exist.json")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) without sheets credentials should return error")
	}
}

func TestRun_HealthcheckWithoutServer_ReturnsError(t *testing.T) {
	// 空いていないことが期待できるポートを指定する
	t.Setenv("SERVER_PORT", "1")

	var buf bytes.Buffer
	err := Run(&buf, []string{"healthcheck"})
	if err == nil {
		t.Fatal("healthcheck without a running server should return error")
	}
}
