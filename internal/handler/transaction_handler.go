package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/kakeibo/internal/model"
	"github.com/hitoshi/kakeibo/internal/transaction"
)

// apiDateLayout はレスポンスの日付書式。
const apiDateLayout = "2006-01-02"

// TransactionServiceInterface は取引ハンドラーが必要とするサービスインターフェース。
type TransactionServiceInterface interface {
	Create(ctx context.Context, userID string, in transaction.CreateInput) (*model.Transaction, error)
	Get(ctx context.Context, userID, id string) (*model.Transaction, error)
	Update(ctx context.Context, userID, id string, in transaction.UpdateInput) (*model.Transaction, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, q transaction.ListQuery) (*transaction.ListResult, error)
	DashboardStats(ctx context.Context, userID string) (*model.DashboardStats, error)
}

// TransactionHandler は取引管理のHTTPハンドラー。
type TransactionHandler struct {
	service TransactionServiceInterface
}

// NewTransactionHandler はTransactionHandlerを生成する。
func NewTransactionHandler(service TransactionServiceInterface) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// createTransactionRequest は取引作成リクエストのボディ。
// amountは数値・数値文字列のどちらも受け付ける。
type createTransactionRequest struct {
	Type     string           `json:"type"`
	Amount   *decimal.Decimal `json:"amount"`
	Category string           `json:"category"`
	Date     string           `json:"date"`
	Note     string           `json:"note"`
}

// updateTransactionRequest は取引更新リクエストのボディ。
// 省略またはnullのフィールドは変更しない。
type updateTransactionRequest struct {
	Type     *string          `json:"type"`
	Amount   *decimal.Decimal `json:"amount"`
	Category *string          `json:"category"`
	Date     *string          `json:"date"`
	Note     *string          `json:"note"`
}

// transactionResponse は取引情報のAPIレスポンス。
type transactionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Date      string    `json:"date"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// paginationResponse はページ情報のAPIレスポンス。
type paginationResponse struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// listTransactionsResponse は取引一覧のAPIレスポンス。
type listTransactionsResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Pagination   paginationResponse    `json:"pagination"`
}

// categoryStatResponse はカテゴリ別小計のAPIレスポンス。
type categoryStatResponse struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// monthlyTotalResponse は月別集計のAPIレスポンス。
type monthlyTotalResponse struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Type  string  `json:"type"`
	Total float64 `json:"total"`
}

// dashboardStatsResponse はダッシュボード集計のAPIレスポンス。
type dashboardStatsResponse struct {
	TotalIncome   float64                         `json:"totalIncome"`
	TotalExpense  float64                         `json:"totalExpense"`
	Balance       float64                         `json:"balance"`
	CategoryStats map[string]categoryStatResponse `json:"categoryStats"`
	MonthlyData   []monthlyTotalResponse          `json:"monthlyData"`
}

// List は取引一覧を返す。
// GET /api/transactions?category=&startDate=&endDate=&search=&page=&limit=
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	result, err := h.service.List(r.Context(), userID, transaction.ListQuery{
		Category:  q.Get("category"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		Search:    q.Get("search"),
		Page:      q.Get("page"),
		Limit:     q.Get("limit"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	txs := make([]transactionResponse, len(result.Transactions))
	for i, tx := range result.Transactions {
		txs[i] = toTransactionResponse(tx)
	}

	writeSuccess(w, http.StatusOK, "", listTransactionsResponse{
		Transactions: txs,
		Pagination: paginationResponse{
			Total: result.Total,
			Page:  result.Page,
			Limit: result.Limit,
			Pages: result.Pages,
		},
	})
}

// Get は取引詳細を返す。
// GET /api/transactions/{id}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	tx, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", toTransactionResponse(tx))
}

// Create は取引を作成する。
// POST /api/transactions
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createTransactionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	tx, err := h.service.Create(r.Context(), userID, transaction.CreateInput{
		Type:     req.Type,
		Amount:   req.Amount,
		Category: req.Category,
		Date:     req.Date,
		Note:     req.Note,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Transaction created successfully", toTransactionResponse(tx))
}

// Update は取引を部分更新する。
// PUT /api/transactions/{id}
func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateTransactionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	tx, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), transaction.UpdateInput{
		Type:     req.Type,
		Amount:   req.Amount,
		Category: req.Category,
		Date:     req.Date,
		Note:     req.Note,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Transaction updated successfully", toTransactionResponse(tx))
}

// Delete は取引を削除する。
// DELETE /api/transactions/{id}
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Transaction deleted successfully", nil)
}

// DashboardStats はダッシュボード用の集計を返す。
// GET /api/transactions/stats/dashboard
func (h *TransactionHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.DashboardStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", toDashboardStatsResponse(stats))
}

// --- ヘルパー関数 ---

// toTransactionResponse はmodel.TransactionからAPIレスポンスに変換する。
func toTransactionResponse(tx *model.Transaction) transactionResponse {
	return transactionResponse{
		ID:        tx.ID,
		UserID:    tx.UserID,
		Type:      string(tx.Type),
		Amount:    tx.Amount.InexactFloat64(),
		Category:  string(tx.Category),
		Date:      tx.Date.Format(apiDateLayout),
		Note:      tx.Note,
		CreatedAt: tx.CreatedAt,
		UpdatedAt: tx.UpdatedAt,
	}
}

// toDashboardStatsResponse はmodel.DashboardStatsからAPIレスポンスに変換する。
func toDashboardStatsResponse(stats *model.DashboardStats) dashboardStatsResponse {
	categories := make(map[string]categoryStatResponse, len(stats.CategoryStats))
	for c, cs := range stats.CategoryStats {
		categories[string(c)] = categoryStatResponse{
			Income:  cs.Income.InexactFloat64(),
			Expense: cs.Expense.InexactFloat64(),
		}
	}

	monthly := make([]monthlyTotalResponse, len(stats.MonthlyData))
	for i, m := range stats.MonthlyData {
		monthly[i] = monthlyTotalResponse{
			Year:  m.Year,
			Month: m.Month,
			Type:  string(m.Type),
			Total: m.Total.InexactFloat64(),
		}
	}

	return dashboardStatsResponse{
		TotalIncome:   stats.TotalIncome.InexactFloat64(),
		TotalExpense:  stats.TotalExpense.InexactFloat64(),
		Balance:       stats.Balance.InexactFloat64(),
		CategoryStats: categories,
		MonthlyData:   monthly,
	}
}
