package handler

import (
	"encoding/json"
	"net/http"
)

// DirectoryStatus はディレクトリ公開状態の参照インターフェース。
type DirectoryStatus interface {
	Known() bool
}

// HealthHandler はコンテナのヘルスプローブ用エンドポイントを処理する。
type HealthHandler struct {
	status DirectoryStatus
}

// NewHealthHandler はHealthHandlerの新しいインスタンスを生成する。
func NewHealthHandler(status DirectoryStatus) *HealthHandler {
	return &HealthHandler{status: status}
}

// Health はGET /healthを処理する。
// 初回同期前でもプロセスが応答可能であれば200を返す。
// directory_knownで同期済みかどうかを区別できる。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"directory_known": h.status.Known(),
	})
}
