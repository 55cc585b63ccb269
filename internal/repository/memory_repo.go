package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/kakeibo/internal/model"
)

// MemoryUserRepo はプロセス内メモリを使用したユーザーリポジトリ。
// 開発・テスト用であり、プロセス終了でデータは失われる。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[string]model.User),
		byEmail: make(map[string]string),
	}
}

// Create はユーザーを作成する。既に同じメールアドレスがあればErrDuplicateEmailを返す。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}
	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	u := r.byID[id]
	return &u, nil
}

// Count は登録済みユーザー数を返す。
func (r *MemoryUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// MemoryTransactionRepo はプロセス内メモリを使用した取引リポジトリ。
type MemoryTransactionRepo struct {
	mu   sync.RWMutex
	byID map[string]model.Transaction
}

// NewMemoryTransactionRepo はMemoryTransactionRepoを生成する。
func NewMemoryTransactionRepo() *MemoryTransactionRepo {
	return &MemoryTransactionRepo{byID: make(map[string]model.Transaction)}
}

// Create は取引を作成する。
func (r *MemoryTransactionRepo) Create(_ context.Context, tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[tx.ID] = *tx
	return nil
}

// FindByID は所有者の取引を取得する。見つからない場合はnilを返す。
func (r *MemoryTransactionRepo) FindByID(_ context.Context, userID, id string) (*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.byID[id]
	if !ok || tx.UserID != userID {
		return nil, nil
	}
	return &tx, nil
}

// Update は取引の可変フィールドを更新する。対象が存在しない場合はfalseを返す。
func (r *MemoryTransactionRepo) Update(_ context.Context, tx *model.Transaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[tx.ID]
	if !ok || current.UserID != tx.UserID {
		return false, nil
	}
	current.Type = tx.Type
	current.Amount = tx.Amount
	current.Category = tx.Category
	current.Date = tx.Date
	current.Note = tx.Note
	current.UpdatedAt = tx.UpdatedAt
	r.byID[tx.ID] = current
	return true, nil
}

// Delete は所有者の取引を削除する。対象が存在しない場合はfalseを返す。
func (r *MemoryTransactionRepo) Delete(_ context.Context, userID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.byID[id]
	if !ok || tx.UserID != userID {
		return false, nil
	}
	delete(r.byID, id)
	return true, nil
}

// List は条件に一致する取引をdate降順、id降順で返す。
func (r *MemoryTransactionRepo) List(
	_ context.Context,
	userID string,
	filter model.TransactionFilter,
	offset, limit int,
) ([]*model.Transaction, int, error) {
	r.mu.RLock()
	matched := make([]model.Transaction, 0)
	for _, tx := range r.byID {
		if tx.UserID == userID && matchesFilter(tx, filter) {
			matched = append(matched, tx)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	txs := make([]*model.Transaction, 0)
	for i := offset; i < total && i < offset+limit; i++ {
		tx := matched[i]
		txs = append(txs, &tx)
	}
	return txs, total, nil
}

// CategoryTotals はカテゴリ・種別ごとの合計金額を返す。
func (r *MemoryTransactionRepo) CategoryTotals(_ context.Context, userID string) ([]model.CategoryTypeTotal, error) {
	type key struct {
		category model.Category
		txType   model.TransactionType
	}

	r.mu.RLock()
	sums := make(map[key]decimal.Decimal)
	for _, tx := range r.byID {
		if tx.UserID != userID {
			continue
		}
		k := key{tx.Category, tx.Type}
		sums[k] = sums[k].Add(tx.Amount)
	}
	r.mu.RUnlock()

	totals := make([]model.CategoryTypeTotal, 0, len(sums))
	for k, v := range sums {
		totals = append(totals, model.CategoryTypeTotal{Category: k.category, Type: k.txType, Total: v})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Category != totals[j].Category {
			return totals[i].Category < totals[j].Category
		}
		return totals[i].Type < totals[j].Type
	})
	return totals, nil
}

// MonthlyTotals はsince以降の取引について年・月・種別ごとの合計金額を返す。
func (r *MemoryTransactionRepo) MonthlyTotals(_ context.Context, userID string, since time.Time) ([]model.MonthlyTotal, error) {
	type key struct {
		year   int
		month  int
		txType model.TransactionType
	}

	r.mu.RLock()
	sums := make(map[key]decimal.Decimal)
	for _, tx := range r.byID {
		if tx.UserID != userID || tx.Date.Before(since) {
			continue
		}
		k := key{tx.Date.Year(), int(tx.Date.Month()), tx.Type}
		sums[k] = sums[k].Add(tx.Amount)
	}
	r.mu.RUnlock()

	totals := make([]model.MonthlyTotal, 0, len(sums))
	for k, v := range sums {
		totals = append(totals, model.MonthlyTotal{Year: k.year, Month: k.month, Type: k.txType, Total: v})
	}
	sort.Slice(totals, func(i, j int) bool {
		a, b := totals[i], totals[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Type < b.Type
	})
	return totals, nil
}

// matchesFilter は取引が絞り込み条件をすべて満たすかどうかを返す。
func matchesFilter(tx model.Transaction, filter model.TransactionFilter) bool {
	if filter.Category != nil && tx.Category != *filter.Category {
		return false
	}
	if filter.StartDate != nil && tx.Date.Before(dateOnly(*filter.StartDate)) {
		return false
	}
	if filter.EndDate != nil && tx.Date.After(dateOnly(*filter.EndDate)) {
		return false
	}
	if filter.Search != "" && !strings.Contains(strings.ToLower(tx.Note), strings.ToLower(filter.Search)) {
		return false
	}
	return true
}

// compile-time interface check
var (
	_ UserRepository        = (*MemoryUserRepo)(nil)
	_ TransactionRepository = (*MemoryTransactionRepo)(nil)
)
