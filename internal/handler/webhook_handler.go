package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// WebhookHandler はNeonCRMからのWebhook通知を処理する。
// ディレクトリは定期同期で再取得されるため、通知は受領確認のみを返す。
type WebhookHandler struct {
	logger *slog.Logger
}

// NewWebhookHandler はWebhookHandlerの新しいインスタンスを生成する。
func NewWebhookHandler(logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{logger: logger}
}

// Acknowledge はWebhook通知を受領し成功レスポンスを返す。
func (h *WebhookHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	// NeonCRM側の再送を防ぐためボディは読み捨てる
	io.Copy(io.Discard, r.Body)

	h.logger.Info("webhookを受領しました",
		slog.String("path", r.URL.Path),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
