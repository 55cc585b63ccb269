package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/kakeibo/internal/model"
)

// PostgresTransactionRepo はPostgreSQLを使用した取引リポジトリ。
// amountはNUMERIC(14,2)、dateはDATE型で保持する。
type PostgresTransactionRepo struct {
	db *sql.DB
}

// NewPostgresTransactionRepo はPostgresTransactionRepoを生成する。
func NewPostgresTransactionRepo(db *sql.DB) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

const postgresTransactionColumns = `id, user_id, type, amount, category, date, note, created_at, updated_at`

// Create は取引を作成する。
func (r *PostgresTransactionRepo) Create(ctx context.Context, tx *model.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+postgresTransactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.ID, tx.UserID, string(tx.Type), tx.Amount, string(tx.Category),
		formatDate(tx.Date), tx.Note, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("取引の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は所有者の取引を取得する。見つからない場合はnilを返す。
func (r *PostgresTransactionRepo) FindByID(ctx context.Context, userID, id string) (*model.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postgresTransactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	tx, err := scanPostgresTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("取引の取得に失敗しました: %w", err)
	}
	return tx, nil
}

// Update は取引の可変フィールドを更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresTransactionRepo) Update(ctx context.Context, tx *model.Transaction) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET type = $1, amount = $2, category = $3, date = $4, note = $5, updated_at = $6
		 WHERE id = $7 AND user_id = $8`,
		string(tx.Type), tx.Amount, string(tx.Category), formatDate(tx.Date), tx.Note, tx.UpdatedAt,
		tx.ID, tx.UserID,
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
func (r *PostgresTransactionRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2`,
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
// idはUUIDv7のため、同日の取引は新しく登録したものが先になる。
func (r *PostgresTransactionRepo) List(
	ctx context.Context,
	userID string,
	filter model.TransactionFilter,
	offset, limit int,
) ([]*model.Transaction, int, error) {
	where, args := buildFilterClause(userID, filter, dollarPlaceholder, "ILIKE")

	// 1. 総件数
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("取引件数の取得に失敗しました: %w", err)
	}
	if total == 0 || offset >= total {
		return []*model.Transaction{}, total, nil
	}

	// 2. ページ切り出し
	query := `SELECT ` + postgresTransactionColumns + ` FROM transactions` + where +
		fmt.Sprintf(" ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("取引一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	txs := make([]*model.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanPostgresTransaction(rows)
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
func (r *PostgresTransactionRepo) CategoryTotals(ctx context.Context, userID string) ([]model.CategoryTypeTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, type, SUM(amount)
		 FROM transactions
		 WHERE user_id = $1
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
		var t model.CategoryTypeTotal
		var category, txType string
		if err := rows.Scan(&category, &txType, &t.Total); err != nil {
			return nil, fmt.Errorf("カテゴリ別集計行の読み取りに失敗しました: %w", err)
		}
		t.Category = model.Category(category)
		t.Type = model.TransactionType(txType)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ別集計の走査に失敗しました: %w", err)
	}
	return totals, nil
}

// MonthlyTotals はsince以降の取引について年・月・種別ごとの合計金額を返す。
func (r *PostgresTransactionRepo) MonthlyTotals(ctx context.Context, userID string, since time.Time) ([]model.MonthlyTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT EXTRACT(YEAR FROM date)::int AS year,
		        EXTRACT(MONTH FROM date)::int AS month,
		        type,
		        SUM(amount)
		 FROM transactions
		 WHERE user_id = $1 AND date >= $2
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
		if err := rows.Scan(&t.Year, &t.Month, &txType, &t.Total); err != nil {
			return nil, fmt.Errorf("月別集計行の読み取りに失敗しました: %w", err)
		}
		t.Type = model.TransactionType(txType)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("月別集計の走査に失敗しました: %w", err)
	}
	return totals, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPostgresTransaction は1行分の取引を読み取る。
func scanPostgresTransaction(s rowScanner) (*model.Transaction, error) {
	tx := &model.Transaction{}
	var txType, category string
	var date time.Time
	if err := s.Scan(
		&tx.ID, &tx.UserID, &txType, &tx.Amount, &category,
		&date, &tx.Note, &tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tx.Type = model.TransactionType(txType)
	tx.Category = model.Category(category)
	tx.Date = dateOnly(date)
	return tx, nil
}

// compile-time interface check
var _ TransactionRepository = (*PostgresTransactionRepo)(nil)
