package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	t.Setenv("NEON_API_KEY", "test-api-key")
	t.Setenv("NEON_PASSWORD", "test-webhook-password")
	t.Setenv("RFID_SHEET_ID", "test-sheet-id")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.NeonAPIKey != "test-api-key" {
		t.Errorf("NeonAPIKey = %q, want test-api-key", cfg.NeonAPIKey)
	}
	if cfg.ServerPort != "5050" {
		t.Errorf("ServerPort = %q, want 5050 (default)", cfg.ServerPort)
	}

	// グローバルのslogがJSON出力になっていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	t.Setenv("NEON_API_KEY", "")
	t.Setenv("NEON_PASSWORD", "")
	t.Setenv("RFID_SHEET_ID", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}
