package app

import (
	"io"

	"github.com/spf13/cobra"
)

// Command はアプリケーションのサブコマンド名を表す。
type Command string

const (
	// CommandServe はダッシュボードサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandStatus は永続化済みのセッション状態を表示することを示す。
	CommandStatus Command = "status"
	// CommandLogout は永続化済みのセッションを消去することを示す。
	CommandLogout Command = "logout"
)

// version はビルド時に -ldflags で上書きする。
var version = "dev"

// NewRootCommand はsupporthubのルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "supporthub",
		Short:         "Customer-support dashboard server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(w)
		},
	}
	root.SetOut(w)

	root.AddCommand(serveCmd(w))
	root.AddCommand(migrateCmd(w))
	root.AddCommand(healthcheckCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(logoutCmd())

	return root
}

func serveCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandServe),
		Short: "Start the dashboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(w)
		},
	}
}

func migrateCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply database migrations for the postgres session store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initStore(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg)
		},
	}
}

// healthcheckCmd は軽量サブコマンドのため、フル初期化をスキップする。
func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(healthcheckTarget())
		},
	}
}

// statusCmd とlogoutCmd は結果を標準出力に、ログを標準エラーに書く。
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandStatus),
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initStore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runStatus(cmd.OutOrStdout(), cfg)
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandLogout),
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initStore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runLogout(cmd.OutOrStdout(), cfg)
		},
	}
}

func serve(w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return err
	}
	return runServe(cfg)
}
