// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/kakeibo/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// メールアドレスが既に登録されている場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// TransactionRepository は取引データの永続化インターフェース。
// すべての操作は所有者IDでスコープされ、他ユーザーの取引は存在しないものとして扱う。
type TransactionRepository interface {
	// Create は取引を作成する。
	Create(ctx context.Context, tx *model.Transaction) error

	// FindByID は所有者の取引を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Transaction, error)

	// Update は取引の可変フィールド（type, amount, category, date, note, updated_at）を更新する。
	// 対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, tx *model.Transaction) (bool, error)

	// Delete は所有者の取引を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)

	// List は条件に一致する取引をdate降順、id降順で返す。
	// offsetとlimitで切り出した結果と、切り出し前の総件数を返す。
	List(ctx context.Context, userID string, filter model.TransactionFilter, offset, limit int) ([]*model.Transaction, int, error)

	// CategoryTotals はカテゴリ・種別ごとの合計金額を返す。
	CategoryTotals(ctx context.Context, userID string) ([]model.CategoryTypeTotal, error)

	// MonthlyTotals はsince以降の日付の取引について年・月・種別ごとの合計金額を返す。
	// 結果は年、月、種別の昇順に並ぶ。
	MonthlyTotals(ctx context.Context, userID string, since time.Time) ([]model.MonthlyTotal, error)
}
