// Package transaction は収支記録の登録・更新・削除・一覧・集計を提供する。
// すべての操作は呼び出し元ユーザー（所有者）の取引に限定される。
package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/model"
	"github.com/hitoshi/kakeibo/internal/repository"
)

// ページネーションのデフォルト値と上限
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// MaxPage はoffsetの桁あふれを防ぐためのページ番号の上限。
const MaxPage = 1 << 24

// CreateInput は取引作成の入力。
// 文字列フィールドの空文字・Amountのnilは未入力として扱う。
type CreateInput struct {
	Type     string
	Amount   *decimal.Decimal
	Category string
	Date     string
	Note     string
}

// UpdateInput は取引更新の入力。nilのフィールドは変更しない。
// Noteに空文字を指定した場合はメモを消去する。
type UpdateInput struct {
	Type     *string
	Amount   *decimal.Decimal
	Category *string
	Date     *string
	Note     *string
}

// ListQuery は一覧取得のクエリパラメータ（未解析の文字列）。
type ListQuery struct {
	Category  string
	StartDate string
	EndDate   string
	Search    string
	Page      string
	Limit     string
}

// ListResult はListの戻り値。
type ListResult struct {
	Transactions []*model.Transaction
	Total        int
	Page         int
	Limit        int
	Pages        int
}

// Service は取引に関するビジネスロジックを提供する。
type Service struct {
	repo    repository.TransactionRepository
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(repo repository.TransactionRepository, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:    repo,
		metrics: mc,
		now:     time.Now,
	}
}

// Create は所有者の取引を作成する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Transaction, error) {
	// 1. 入力検証（全違反を収集）
	var v validator
	txType := v.transactionType(in.Type)
	amount := v.amount(in.Amount)
	category := v.category(in.Category)
	date := v.date(in.Date)
	note := v.note(in.Note)
	if err := v.err(); err != nil {
		return nil, err
	}

	// 2. サーバー側で採番
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction ID: %w", err)
	}
	now := s.now().UTC()
	tx := &model.Transaction{
		ID:        id.String(),
		UserID:    userID,
		Type:      txType,
		Amount:    amount,
		Category:  category,
		Date:      date,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 3. 永続化
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.metrics.RecordTransactionOp(metrics.OpCreate)
	slog.Info("transaction created",
		slog.String("user_id", userID),
		slog.String("transaction_id", tx.ID),
	)
	return tx, nil
}

// Get は所有者の取引を取得する。存在しない・他ユーザーの取引はNotFoundErrorを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Transaction, error) {
	if !isValidID(id) {
		return nil, model.NewTransactionNotFoundError()
	}
	tx, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx == nil {
		return nil, model.NewTransactionNotFoundError()
	}
	return tx, nil
}

// Update は所有者の取引を部分更新する。
// 存在確認を先に行い、その後に指定されたフィールドのみを作成時と同じ規則で検証する。
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*model.Transaction, error) {
	// 1. 存在確認
	tx, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	// 2. 指定フィールドの検証と適用
	var v validator
	if in.Type != nil {
		tx.Type = v.transactionType(*in.Type)
	}
	if in.Amount != nil {
		tx.Amount = v.amount(in.Amount)
	}
	if in.Category != nil {
		tx.Category = v.category(*in.Category)
	}
	if in.Date != nil {
		tx.Date = v.date(*in.Date)
	}
	if in.Note != nil {
		tx.Note = v.note(*in.Note)
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	// 3. 永続化
	tx.UpdatedAt = s.now().UTC()
	updated, err := s.repo.Update(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if !updated {
		// 確認後に削除された場合
		return nil, model.NewTransactionNotFoundError()
	}

	s.metrics.RecordTransactionOp(metrics.OpUpdate)
	slog.Info("transaction updated",
		slog.String("user_id", userID),
		slog.String("transaction_id", tx.ID),
	)
	return tx, nil
}

// Delete は所有者の取引を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if !isValidID(id) {
		return model.NewTransactionNotFoundError()
	}
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if !deleted {
		return model.NewTransactionNotFoundError()
	}

	s.metrics.RecordTransactionOp(metrics.OpDelete)
	slog.Info("transaction deleted",
		slog.String("user_id", userID),
		slog.String("transaction_id", id),
	)
	return nil
}

// List は絞り込み条件に一致する所有者の取引を、date降順でページ単位に返す。
func (s *Service) List(ctx context.Context, userID string, q ListQuery) (*ListResult, error) {
	filter, page, limit, err := parseListQuery(q)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * limit
	txs, total, err := s.repo.List(ctx, userID, filter, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &ListResult{
		Transactions: txs,
		Total:        total,
		Page:         page,
		Limit:        limit,
		Pages:        (total + limit - 1) / limit,
	}, nil
}

// parseListQuery はクエリパラメータを検証し、絞り込み条件とページ指定に変換する。
func parseListQuery(q ListQuery) (model.TransactionFilter, int, int, error) {
	var v validator
	var filter model.TransactionFilter

	// カテゴリ: 空または"all"は絞り込みなし
	if c := strings.TrimSpace(q.Category); c != "" && c != model.CategoryAll {
		category := model.Category(c)
		if category.Valid() {
			filter.Category = &category
		} else {
			v.add("Category must be one of: all, %s", joinCategories())
		}
	}

	if raw := strings.TrimSpace(q.StartDate); raw != "" {
		if d, ok := parseDate(raw); ok {
			filter.StartDate = &d
		} else {
			v.add("startDate must be a valid date (YYYY-MM-DD)")
		}
	}
	if raw := strings.TrimSpace(q.EndDate); raw != "" {
		if d, ok := parseDate(raw); ok {
			filter.EndDate = &d
		} else {
			v.add("endDate must be a valid date (YYYY-MM-DD)")
		}
	}

	filter.Search = strings.TrimSpace(q.Search)

	page := parsePositiveInt(&v, q.Page, DefaultPage, "Page")
	if page > MaxPage {
		v.add("Page must not exceed %d", MaxPage)
	}
	limit := parsePositiveInt(&v, q.Limit, DefaultLimit, "Limit")
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if err := v.err(); err != nil {
		return model.TransactionFilter{}, 0, 0, err
	}
	return filter, page, limit, nil
}

// parsePositiveInt は正の整数を解析する。空文字はデフォルト値とする。
func parsePositiveInt(v *validator, raw string, def int, field string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		v.add("%s must be a positive integer", field)
		return def
	}
	return n
}

// isValidID はIDがUUID形式かどうかを返す。
// 形式外のIDはどのストアにも存在し得ないため、問い合わせずに見つからない扱いにする。
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
