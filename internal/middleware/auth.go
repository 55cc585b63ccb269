// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/kakeibo/internal/model"
)

const bearerScheme = "Bearer"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type TokenVerifier interface {
	// VerifyToken はトークンを検証し、ユーザーIDを返す。
	// 失敗時はMissingTokenErrorまたはInvalidTokenErrorを返す。
	VerifyToken(token string) (string, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// トークン未指定・不正なリクエストには401 Unauthorizedを返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
				return
			}

			// 2. トークンの有効性を検証
			userID, err := verifier.VerifyToken(token)
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					slog.Error("failed to verify token",
						slog.String("error", err.Error()),
					)
					apiErr = model.NewInvalidTokenError()
				}
				WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
				return
			}

			// 3. 認証済みユーザーIDをコンテキストに注入
			annotateRequestLog(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// Bearerスキーム以外のヘッダーはトークン未指定として空文字を返す。
func bearerToken(header string) string {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return ""
	}
	return strings.TrimSpace(rest)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
