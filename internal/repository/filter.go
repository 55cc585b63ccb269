package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/kakeibo/internal/model"
)

// dateLayout は日付カラムの受け渡しに使う書式。
const dateLayout = "2006-01-02"

// placeholderFunc はn番目（1始まり）のバインドパラメータ表記を返す。
type placeholderFunc func(n int) string

// dollarPlaceholder はPostgreSQL形式（$1, $2, ...）のプレースホルダ。
func dollarPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// questionPlaceholder はSQLite形式（?）のプレースホルダ。
func questionPlaceholder(int) string {
	return "?"
}

// buildFilterClause はTransactionFilterからWHERE句と引数を組み立てる。
// likeOpは大文字小文字を区別しない部分一致に使う演算子（ILIKE/LIKE）。
func buildFilterClause(userID string, filter model.TransactionFilter, ph placeholderFunc, likeOp string) (string, []any) {
	args := []any{userID}
	conds := []string{"user_id = " + ph(1)}

	next := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}

	if filter.Category != nil {
		conds = append(conds, "category = "+next(string(*filter.Category)))
	}
	if filter.StartDate != nil {
		conds = append(conds, "date >= "+next(formatDate(*filter.StartDate)))
	}
	if filter.EndDate != nil {
		conds = append(conds, "date <= "+next(formatDate(*filter.EndDate)))
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		conds = append(conds, fmt.Sprintf(`note %s %s ESCAPE '\'`, likeOp, next(pattern)))
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike はLIKEパターンのワイルドカードをエスケープする。
// 検索文字列は常にリテラルとして扱う。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// formatDate は日付をYYYY-MM-DD形式に変換する。
func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// dateOnly はタイムゾーンの暦日を保ったままUTCの0時に正規化する。
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
