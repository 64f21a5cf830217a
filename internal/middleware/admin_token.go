package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/davron/realnews/internal/model"
)

// adminTokenHeader は管理APIの認証トークンを運ぶHTTPヘッダー。
const adminTokenHeader = "X-Admin-Token"

// NewAdminAuthMiddleware は共有シークレットによる管理APIの認証ミドルウェアを返す。
// トークンの比較は定数時間で行い、タイミング攻撃を防ぐ。
func NewAdminAuthMiddleware(adminToken string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(adminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "管理トークンが不正です。",
					Category: "auth",
					Action:   "正しいX-Admin-Tokenヘッダーを付与してください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
