// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// Codeはハンドラー層でHTTPステータスに変換され、Messageはそのままクライアントに返される。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeMissingToken       = "MISSING_TOKEN"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
// 違反したすべての項目のメッセージをカンマ区切りで1つにまとめる。
func NewValidationError(messages ...string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: strings.Join(messages, ", "),
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:    ErrCodeDuplicateEmail,
		Message: "User with this email already exists",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー不在とパスワード不一致のどちらでも同じメッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidCredentials,
		Message: "Invalid email or password",
	}
}

// NewMissingTokenError はBearerトークン未指定エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeMissingToken,
		Message: "No token provided. Authorization denied.",
	}
}

// NewInvalidTokenError は不正・期限切れトークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidToken,
		Message: "Invalid token. Authorization denied.",
	}
}

// NewTransactionNotFoundError は取引が見つからない場合のエラーを生成する。
// 他ユーザーの取引を指定された場合も同じエラーを返し、存在を漏らさない。
func NewTransactionNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: "Transaction not found",
	}
}

// NewRouteNotFoundError は未定義ルートへのアクセスエラーを生成する。
func NewRouteNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: "Route not found",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "Too many requests. Please try again later.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "Internal server error",
	}
}
