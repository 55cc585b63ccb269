package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType は収支の種別を表す。
type TransactionType string

const (
	// TransactionTypeIncome は収入。
	TransactionTypeIncome TransactionType = "income"
	// TransactionTypeExpense は支出。
	TransactionTypeExpense TransactionType = "expense"
)

// TransactionTypes は有効な種別の一覧。
var TransactionTypes = []TransactionType{TransactionTypeIncome, TransactionTypeExpense}

// Valid は種別が定義済みの値かどうかを返す。
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Category は取引のカテゴリを表す。固定の閉じた集合。
type Category string

const (
	CategoryFood     Category = "Food"
	CategoryTravel   Category = "Travel"
	CategoryRent     Category = "Rent"
	CategoryShopping Category = "Shopping"
	CategorySalary   Category = "Salary"
	CategoryOther    Category = "Other"
)

// CategoryAll は一覧取得でカテゴリ絞り込みを行わないことを示すセンチネル値。
const CategoryAll = "all"

// Categories は有効なカテゴリの一覧（表示順）。
var Categories = []Category{
	CategoryFood,
	CategoryTravel,
	CategoryRent,
	CategoryShopping,
	CategorySalary,
	CategoryOther,
}

// Valid はカテゴリが定義済みの値かどうかを返す。
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// MaxNoteLength はメモの最大文字数。
const MaxNoteLength = 200

// Transaction は1件の収支記録を表す。
// UserIDは所有者の参照であり、すべての読み書きはUserIDでスコープされる。
type Transaction struct {
	ID        string
	UserID    string
	Type      TransactionType
	Amount    decimal.Decimal
	Category  Category
	Date      time.Time // UTCの0時に正規化された日付
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionFilter は取引一覧の絞り込み条件。
// 各条件はAND結合され、nil・空文字のフィールドは条件に含めない。
type TransactionFilter struct {
	Category  *Category
	StartDate *time.Time // 含む
	EndDate   *time.Time // 含む
	Search    string     // メモに対する大文字小文字を区別しない部分一致
}

// CategoryTypeTotal はカテゴリ・種別ごとの合計金額。
type CategoryTypeTotal struct {
	Category Category
	Type     TransactionType
	Total    decimal.Decimal
}

// MonthlyTotal は年・月・種別ごとの合計金額。
type MonthlyTotal struct {
	Year  int
	Month int
	Type  TransactionType
	Total decimal.Decimal
}

// CategoryStat はカテゴリ別の収入・支出小計。
type CategoryStat struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// DashboardStats はダッシュボード用の集計結果。
type DashboardStats struct {
	TotalIncome   decimal.Decimal
	TotalExpense  decimal.Decimal
	Balance       decimal.Decimal
	CategoryStats map[Category]CategoryStat
	MonthlyData   []MonthlyTotal
}
