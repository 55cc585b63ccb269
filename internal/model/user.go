// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュであり、平文パスワードは保持しない。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail はメールアドレスを保存・検索用に正規化する。
// 前後の空白を除去し、小文字に変換する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
