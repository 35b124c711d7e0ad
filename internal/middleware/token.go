// Package middleware はHTTPミドルウェア群の実装。
// 認証、レート制限、リクエストログ、パニック回復、セキュリティヘッダーを提供する。
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const tokenContextKey contextKey = "auth_token"

// ErrNoToken はコンテキストに認証トークンが存在しない場合のエラー。
var ErrNoToken = errors.New("コンテキストに認証トークンがありません")

// TokenFromContext はリクエストコンテキストから認証済みトークンを取り出す。
func TokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(tokenContextKey).(string)
	if !ok || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// NewTokenAuthMiddleware はBearerトークン認証のミドルウェアを返す。
// Authorizationヘッダーのトークンが許可リストのいずれかと一致した場合のみ通過させる。
// 認証に成功したトークンはコンテキストへ格納する（レート制限のキーとして使用）。
func NewTokenAuthMiddleware(tokens []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || presented == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// タイミング攻撃対策として全トークンを定数時間で比較する
			matched := false
			for _, token := range tokens {
				if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
					matched = true
				}
			}
			if !matched {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey, presented)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
