package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/kakeibo/internal/model"
)

// SQLiteTransactionRepo はSQLiteを使用した取引リポジトリ。
// 金額は浮動小数点誤差を避けるため整数の銭単位（amount_cents）で、
// 日付はYYYY-MM-DD形式のTEXTで保持する。
type SQLiteTransactionRepo struct {
	db *sql.DB
}

// NewSQLiteTransactionRepo はSQLiteTransactionRepoを生成する。
func NewSQLiteTransactionRepo(db *sql.DB) *SQLiteTransactionRepo {
	return &SQLiteTransactionRepo{db: db}
}

const sqliteTransactionColumns = `id, user_id, type, amount_cents, category, date, note, created_at, updated_at`

// Create は取引を作成する。
func (r *SQLiteTransactionRepo) Create(ctx context.Context, tx *model.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+sqliteTransactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, string(tx.Type), toCents(tx.Amount), string(tx.Category),
		formatDate(tx.Date), tx.Note, formatTimestamp(tx.CreatedAt), formatTimestamp(tx.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("取引の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は所有者の取引を取得する。見つからない場合はnilを返す。
func (r *SQLiteTransactionRepo) FindByID(ctx context.Context, userID, id string) (*model.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteTransactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	tx, err := scanSQLiteTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("取引の取得に失敗しました: %w", err)
	}
	return tx, nil
}

// Update は取引の可変フィールドを更新する。対象が存在しない場合はfalseを返す。
func (r *SQLiteTransactionRepo) Update(ctx context.Context, tx *model.Transaction) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET type = ?, amount_cents = ?, category = ?, date = ?, note = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		string(tx.Type), toCents(tx.Amount), string(tx.Category), formatDate(tx.Date), tx.Note,
		formatTimestamp(tx.UpdatedAt), tx.ID, tx.UserID,
	)
	if err != nil {
		return false, fmt.Errorf("取引の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete は所有者の取引を削除する。対象が存在しない場合はfalseを返す。
func (r *SQLiteTransactionRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("取引の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// List は条件に一致する取引をdate降順、id降順で返す。
// SQLiteのLIKEはASCIIの範囲でのみ大文字小文字を区別しない。
func (r *SQLiteTransactionRepo) List(
	ctx context.Context,
	userID string,
	filter model.TransactionFilter,
	offset, limit int,
) ([]*model.Transaction, int, error) {
	where, args := buildFilterClause(userID, filter, questionPlaceholder, "LIKE")

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("取引件数の取得に失敗しました: %w", err)
	}
	if total == 0 || offset >= total {
		return []*model.Transaction{}, total, nil
	}

	query := `SELECT ` + sqliteTransactionColumns + ` FROM transactions` + where +
		` ORDER BY date DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("取引一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	txs := make([]*model.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanSQLiteTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("取引行の読み取りに失敗しました: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("取引一覧の走査に失敗しました: %w", err)
	}

	return txs, total, nil
}

// CategoryTotals はカテゴリ・種別ごとの合計金額を返す。
func (r *SQLiteTransactionRepo) CategoryTotals(ctx context.Context, userID string) ([]model.CategoryTypeTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, type, SUM(amount_cents)
		 FROM transactions
		 WHERE user_id = ?
		 GROUP BY category, type
		 ORDER BY category, type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ別集計に失敗しました: %w", err)
	}
	defer rows.Close()

	var totals []model.CategoryTypeTotal
	for rows.Next() {
		var category, txType string
		var cents int64
		if err := rows.Scan(&category, &txType, &cents); err != nil {
			return nil, fmt.Errorf("カテゴリ別集計行の読み取りに失敗しました: %w", err)
		}
		totals = append(totals, model.CategoryTypeTotal{
			Category: model.Category(category),
			Type:     model.TransactionType(txType),
			Total:    fromCents(cents),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ別集計の走査に失敗しました: %w", err)
	}
	return totals, nil
}

// MonthlyTotals はsince以降の取引について年・月・種別ごとの合計金額を返す。
func (r *SQLiteTransactionRepo) MonthlyTotals(ctx context.Context, userID string, since time.Time) ([]model.MonthlyTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT CAST(substr(date, 1, 4) AS INTEGER) AS year,
		        CAST(substr(date, 6, 2) AS INTEGER) AS month,
		        type,
		        SUM(amount_cents)
		 FROM transactions
		 WHERE user_id = ? AND date >= ?
		 GROUP BY year, month, type
		 ORDER BY year, month, type`,
		userID, formatDate(since),
	)
	if err != nil {
		return nil, fmt.Errorf("月別集計に失敗しました: %w", err)
	}
	defer rows.Close()

	var totals []model.MonthlyTotal
	for rows.Next() {
		var t model.MonthlyTotal
		var txType string
		var cents int64
		if err := rows.Scan(&t.Year, &t.Month, &txType, &cents); err != nil {
			return nil, fmt.Errorf("月別集計行の読み取りに失敗しました: %w", err)
		}
		t.Type = model.TransactionType(txType)
		t.Total = fromCents(cents)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("月別集計の走査に失敗しました: %w", err)
	}
	return totals, nil
}

// scanSQLiteTransaction は1行分の取引を読み取る。
func scanSQLiteTransaction(s rowScanner) (*model.Transaction, error) {
	tx := &model.Transaction{}
	var txType, category, date, createdAt, updatedAt string
	var cents int64
	if err := s.Scan(
		&tx.ID, &tx.UserID, &txType, &cents, &category,
		&date, &tx.Note, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if tx.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if tx.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	tx.Type = model.TransactionType(txType)
	tx.Category = model.Category(category)
	tx.Amount = fromCents(cents)
	tx.Date = d
	return tx, nil
}

// toCents は金額を銭単位の整数に変換する。金額は小数2桁に丸め済みであること。
func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// fromCents は銭単位の整数を金額に変換する。
func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// compile-time interface check
var _ TransactionRepository = (*SQLiteTransactionRepo)(nil)
