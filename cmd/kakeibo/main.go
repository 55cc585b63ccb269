package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hitoshi/kakeibo/internal/app"
)

func main() {
	// .envは任意。存在しない場合は環境変数のみを使用する
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := app.Run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
