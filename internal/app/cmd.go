package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// defaultServerPort はSERVER_PORT未設定時のポート番号。
const defaultServerPort = "5000"

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。ログはwに出力する。
func Run(ctx context.Context, w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand はサブコマンドを登録したルートコマンドを生成する。
// サブコマンドが省略された場合はserveとして動作する。
func NewRootCommand(logOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "kakeibo",
		Short: "Personal expense tracker API",
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), logOut)
		},
	}

	root.AddCommand(
		newServeCommand(logOut),
		newMigrateCommand(logOut),
		newHealthcheckCommand(),
		newAddUserCommand(logOut),
	)

	return root
}

func newServeCommand(logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), logOut)
		},
	}
}

func newMigrateCommand(logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(logOut)
			if err != nil {
				return err
			}
			return runMigrate(cfg)
		},
	}
}

// newHealthcheckCommand はdistroless環境でのDockerヘルスチェック用コマンドを生成する。
// 軽量サブコマンドのため、フル初期化をスキップする。
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check that the local API server is healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = defaultServerPort
			}
			return runHealthcheck(cmd.Context(), healthcheckURL(port))
		},
	}
}

func newAddUserCommand(logOut io.Writer) *cobra.Command {
	var in addUserInput

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Register a user from the command line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Name == "" || in.Email == "" {
				return errors.New("--name and --email are required")
			}
			cfg, err := Init(logOut)
			if err != nil {
				return err
			}
			return runAddUser(cmd.Context(), cfg, in, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (prompted when omitted)")

	return cmd
}

// serve は設定を読み込んでAPIサーバーを起動する。
func serve(ctx context.Context, logOut io.Writer) error {
	cfg, err := Init(logOut)
	if err != nil {
		return err
	}

	slog.Info("starting application",
		slog.String("port", cfg.ServerPort),
		slog.String("driver", cfg.DatabaseDriver),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	return runServe(ctx, cfg)
}
