package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/middleware"
	"github.com/hitoshi/kakeibo/internal/model"
)

// transactionPrefixes は取引APIのベースパス。/api/expensesは/api/transactionsの別名。
var transactionPrefixes = []string{"/api/transactions", "/api/expenses"}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector

	// MetricsHandler がnilでない場合は/metricsで公開する。
	MetricsHandler http.Handler

	// ヘルスチェック（nilの場合は疎通確認なし）
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface

	// 取引
	TransactionService TransactionServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → CORS → SecurityHeaders
//	  → (取引API) BearerAuth → RateLimit
//
// 認証ルート（/api/auth/*）とヘルスチェックはBearerAuthの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService)
	txHandler := NewTransactionHandler(deps.TransactionService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- 認証不要のルート ---

	r.Get("/api/health", healthHandler.Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.TokenVerifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		for _, prefix := range transactionPrefixes {
			r.Route(prefix, func(r chi.Router) {
				r.Get("/", txHandler.List)
				r.Post("/", txHandler.Create)

				// 静的ルートは/{id}より先に登録する
				r.Get("/stats/dashboard", txHandler.DashboardStats)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", txHandler.Get)
					r.Put("/", txHandler.Update)
					r.Delete("/", txHandler.Delete)
				})
			})
		}
	})

	// 未定義のルート・メソッドはすべて404
	r.NotFound(routeNotFound)
	r.MethodNotAllowed(routeNotFound)

	return r
}

// routeNotFound は未定義ルートへのアクセスに404を返す。
func routeNotFound(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundError())
}
