package middleware

import (
	"crypto/subtle"
	"net/http"
)

// NewBasicAuthMiddleware はWebhookエンドポイント用のBasic認証ミドルウェアを返す。
// NeonCRMのWebhook設定は固定ユーザー名と共有パスワードで認証する。
func NewBasicAuthMiddleware(username, password string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				unauthorizedBasic(w)
				return
			}

			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
			if !userMatch || !passMatch {
				unauthorizedBasic(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorizedBasic(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="webhooks"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
