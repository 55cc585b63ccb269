package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/kakeibo/internal/middleware"
	"github.com/hitoshi/kakeibo/internal/model"
)

// healthCheckTimeout はデータストア疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はデータストアの疎通確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
	now     func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。checkerがnilの場合は疎通確認を行わない。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		now:     time.Now,
	}
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Health はAPIの稼働状況を返す。
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
				Code:    model.ErrCodeInternal,
				Message: "Database unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "Expense Tracker API is running",
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}
