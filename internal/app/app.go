package app

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"github.com/hitoshi/kakeibo/internal/auth"
	"github.com/hitoshi/kakeibo/internal/config"
	"github.com/hitoshi/kakeibo/internal/database"
	"github.com/hitoshi/kakeibo/internal/handler"
	"github.com/hitoshi/kakeibo/internal/logger"
	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/middleware"
	"github.com/hitoshi/kakeibo/internal/repository"
	"github.com/hitoshi/kakeibo/internal/transaction"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// stores はドライバに応じて構築したリポジトリ群。
type stores struct {
	db           *sql.DB // memoryドライバではnil
	users        repository.UserRepository
	transactions repository.TransactionRepository
}

// openStores はDB接続を開き、マイグレーションを適用してリポジトリを構築する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DatabaseDriver == database.DriverMemory {
		slog.Warn("using in-memory store; data will be lost on restart")
		return &stores{
			users:        repository.NewMemoryUserRepo(),
			transactions: repository.NewMemoryTransactionRepo(),
		}, nil
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := database.PingWithRetry(ctx, db, database.DefaultPingAttempts); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database connection established", slog.String("driver", cfg.DatabaseDriver))

	// 2. マイグレーション
	if err := database.Migrate(cfg.DatabaseDriver, cfg.DatabaseURL, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	// 3. リポジトリの初期化
	st := &stores{db: db}
	switch cfg.DatabaseDriver {
	case database.DriverSQLite:
		st.users = repository.NewSQLiteUserRepo(db)
		st.transactions = repository.NewSQLiteTransactionRepo(db)
	default:
		st.users = repository.NewPostgresUserRepo(db)
		st.transactions = repository.NewPostgresTransactionRepo(db)
	}
	return st, nil
}

// Close はDB接続を閉じる。
func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// healthChecker はヘルスチェック用の疎通確認先を返す。memoryドライバではnil。
func (s *stores) healthChecker() handler.HealthChecker {
	if s.db == nil {
		return nil
	}
	return s.db
}

// newAuthService は設定に従って認証サービスを構築する。
func newAuthService(cfg *config.Config, users repository.UserRepository, mc metrics.MetricsCollector) *auth.Service {
	return auth.NewService(
		users,
		auth.NewBcryptHasher(cfg.BcryptCost),
		auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		mc,
	)
}

// newHTTPHandler は全依存関係をワイヤリングしたHTTPハンドラーを構築する。
// 戻り値のstop関数はレートリミッターのバックグラウンド処理を停止する。
func newHTTPHandler(cfg *config.Config, st *stores, reg *prometheus.Registry) (http.Handler, func()) {
	// 1. メトリクス
	mc := metrics.NewCollector(reg)

	// 2. ドメインサービスの初期化
	authService := newAuthService(cfg, st.users, mc)
	txService := transaction.NewService(st.transactions, mc)

	// 3. ルーターの構築（RATE_LIMIT_GENERALはreq/min単位）
	rl := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral))

	deps := &handler.RouterDeps{
		Logger:             slog.Default(),
		TokenVerifier:      authService,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimiter:        rl,
		Metrics:            mc,
		HealthChecker:      st.healthChecker(),
		AuthService:        authService,
		TransactionService: txService,
	}
	if cfg.MetricsEnabled {
		deps.MetricsHandler = metrics.Handler(reg)
	}

	return handler.NewRouter(deps), rl.Stop
}

// newRegistry はGo・プロセスの標準メトリクスを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. ストアの初期化
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. ハンドラーの構築
	router, stop := newHTTPHandler(cfg, st, newRegistry())
	defer stop()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("driver", cfg.DatabaseDriver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseDriver == database.DriverMemory {
		slog.Info("memory driver has no schema; nothing to migrate")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("driver", cfg.DatabaseDriver),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.PingWithRetry(context.Background(), db, database.DefaultPingAttempts); err != nil {
		return err
	}

	if err := database.Migrate(cfg.DatabaseDriver, cfg.DatabaseURL, db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckURL はローカルで稼働中のサーバーのヘルスチェックURLを返す。
func healthcheckURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/api/health", port)
}

// addUserInput はadduserサブコマンドの入力。
type addUserInput struct {
	Name     string
	Email    string
	Password string
}

// runAddUser はCLIからユーザーを登録する。
// パスワードが未指定の場合はstdinから読み込む。
func runAddUser(ctx context.Context, cfg *config.Config, in addUserInput, stdin io.Reader, stdout io.Writer) error {
	// 1. パスワードの取得
	if in.Password == "" {
		fmt.Fprint(stdout, "Password: ")
		password, err := readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
		in.Password = password
	}

	if strings.TrimSpace(in.Password) == "" {
		return errors.New("password cannot be empty")
	}

	// 2. ストアの初期化
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 3. 登録（入力検証はサインアップと共通）
	user, _, err := newAuthService(cfg, st.users, nil).Register(ctx, auth.RegisterInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", user.Email, user.ID)
	return nil
}

// readPassword は端末からエコーなしでパスワードを読み込む。
// 端末でない場合（パイプ・テスト）は1行読み込む。
func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
// URLとして解釈できない値（SQLiteのファイルパス等）はそのまま返す。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		if strings.Contains(raw, "@") {
			return "***"
		}
		return raw
	}
	if u.User == nil {
		return u.String()
	}
	// url.Userは"*"をエスケープするため、認証情報を外してから組み立てる
	u.User = nil
	return u.Scheme + "://***@" + strings.TrimPrefix(u.String(), u.Scheme+"://")
}
