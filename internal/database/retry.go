package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// initialPingBackoff は接続確認リトライの初回遅延。
	initialPingBackoff = 500 * time.Millisecond
	// maxPingBackoff は接続確認リトライの最大遅延。
	maxPingBackoff = 8 * time.Second
	// DefaultPingAttempts は起動時の接続確認の試行回数。
	DefaultPingAttempts = 6
)

// Pinger はDB接続確認のインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大8秒。
func CalculateBackoff(failures int) time.Duration {
	delay := initialPingBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxPingBackoff {
			return maxPingBackoff
		}
	}
	return delay
}

// PingWithRetry は接続確認が成功するまで指数バックオフで再試行する。
// attempts回失敗した場合は最後のエラーを返す。ctxがキャンセルされた場合はその時点で中断する。
func PingWithRetry(ctx context.Context, db Pinger, attempts int) error {
	return pingWithRetry(ctx, db, attempts, time.After)
}

// pingWithRetry は待機関数を差し替え可能なPingWithRetryの実装。
func pingWithRetry(ctx context.Context, db Pinger, attempts int, after func(time.Duration) <-chan time.Time) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := CalculateBackoff(i)
		slog.Warn("database not reachable, retrying",
			slog.Int("attempt", i+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to connect to database: %w", ctx.Err())
		case <-after(delay):
		}
	}
	return fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
}
