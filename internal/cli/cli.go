// Package cli は設定、ログ、サーバーを組み合わせてコマンドラインから起動する
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"staticsite/internal/config"
	"staticsite/internal/logging"
	"staticsite/internal/server"
	"staticsite/internal/static"
)

// ExitError は cobra コマンドから終了コードを返すためのエラー
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Run は cfg のサーバーを起動し、停止するまでブロックする
// 戻り値はプロセスの終了コード
func Run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) int {
	logger, err := logging.New(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	srv, err := server.New(cfg, server.WithLogger(logger), server.WithConsole(stdout))
	if err != nil {
		red := color.New(color.FgRed)
		if errors.Is(err, static.ErrRootNotFound) {
			red.Fprintf(stderr, "Error: Static directory %s not found!\n", cfg.Static.Root)
			fmt.Fprintln(stderr, "Please make sure you've built the static site first.")
		} else {
			red.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}

	if err := srv.Start(ctx); err != nil {
		logger.WithError(err).Error("サーバーが異常終了しました")
		return 1
	}
	return 0
}

type flagValues struct {
	configPath string
	host       string
	port       int
	root       string
	index      string
	listing    bool
	sniff      bool
	ops        bool
	logLevel   string
	logFormat  string
}

func (v *flagValues) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&v.configPath, "config", "c", "", "設定ファイル (.yaml, .yml, .toml)")
	fs.StringVar(&v.host, "host", "", "サーバーのホスト (デフォルト: 全インターフェース)")
	fs.IntVarP(&v.port, "port", "p", 5000, "サーバーのポート")
	fs.StringVarP(&v.root, "root", "d", config.DefaultRoot, "配信するディレクトリ")
	fs.StringVar(&v.index, "index", "index.html", "ディレクトリ要求時に返すファイル")
	fs.BoolVar(&v.listing, "listing", false, "index がないディレクトリの一覧を返す")
	fs.BoolVar(&v.sniff, "sniff", false, "未知の拡張子の Content-Type を内容から判定する")
	fs.BoolVar(&v.ops, "ops", false, "/-/ 以下の運用エンドポイント (healthy, status, metrics, openapi.json) を有効にする")
	fs.StringVar(&v.logLevel, "log-level", "info", "ログレベル")
	fs.StringVar(&v.logFormat, "log-format", "text", "ログ形式 (text, json)")
}

// apply は明示的に指定されたフラグだけで cfg を上書きする
func (v *flagValues) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("host") {
		cfg.Server.Host = v.host
	}
	if fs.Changed("port") {
		cfg.Server.Port = v.port
	}
	if fs.Changed("root") {
		cfg.Static.Root = v.root
	}
	if fs.Changed("index") {
		cfg.Static.IndexFile = v.index
	}
	if fs.Changed("listing") {
		cfg.Static.DirectoryListing = v.listing
	}
	if fs.Changed("sniff") {
		cfg.Static.Sniff = v.sniff
	}
	if fs.Changed("ops") {
		cfg.Server.OpsEnabled = v.ops
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = v.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = v.logFormat
	}
}

// NewCommand は server コマンドを返す
// 起動に失敗した場合は *ExitError を返す
func NewCommand(stdout, stderr io.Writer) *cobra.Command {
	var flags flagValues
	cmd := &cobra.Command{
		Use:   "server [flags]",
		Short: "ビルド済みの静的ファイルをHTTPで配信する",
		Long: fmt.Sprintf(`ビルド済みの静的ファイル (Next.js の export など) をディレクトリから配信します。
GET と HEAD のみ受け付け、ディレクトリの外を指すリクエストは 403 で拒否します。
デフォルトでは %s で %s を配信します。

設定は設定ファイル、環境変数 (SERVER_HOST, PORT, STATIC_ROOT, LOG_LEVEL)、
フラグの順に上書きされます。`, config.Default().DisplayURL(), config.DefaultRoot),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			flags.apply(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if code := Run(cmd.Context(), cfg, stdout, stderr); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	flags.bind(cmd.Flags())
	return cmd
}

// Execute は args でコマンドを実行し、終了コードを返す
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 2
}
