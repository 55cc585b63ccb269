package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// newChainRouter はサーバーと同じ順序でミドルウェアを組んだルーターを返す。
func newChainRouter(t *testing.T, logBuf *bytes.Buffer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(logBuf, nil))
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 2, CleanupInterval: time.Minute})
	t.Cleanup(rl.Stop)

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewMetricsMiddleware(&mockMetricsCollector{}))
	r.Use(NewCORSMiddleware("http://localhost:3000"))
	r.Use(NewSecurityHeadersMiddleware())

	r.Get("/api/public", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(r chi.Router) {
		r.Use(NewBearerAuthMiddleware(validTokenVerifier("user-chain")))
		r.Use(rl.Middleware())

		r.Get("/api/protected", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
		r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})
	return r
}

func TestMiddlewareChain_PublicRouteNeedsNoToken(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/public", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestMiddlewareChain_ProtectedRoute(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	// トークンなし
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/protected", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// 有効なトークン
	logBuf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["user_id"] != "user-chain" {
		t.Errorf("user_id = %q, want %q", body["user_id"], "user-chain")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(logBuf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["user_id"] != "user-chain" {
		t.Errorf("logged user_id = %v, want %q", entry["user_id"], "user-chain")
	}
}

func TestMiddlewareChain_PreflightSkipsAuth(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/protected", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestMiddlewareChain_RateLimitAfterAuth(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestMiddlewareChain_PanicRecovered(t *testing.T) {
	var logBuf bytes.Buffer
	router := newChainRouter(t, &logBuf)

	req := httptest.NewRequest(http.MethodGet, "/api/panic", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := decodeErrorBody(t, w); body.Message != "Internal server error" {
		t.Errorf("message = %q", body.Message)
	}
}
