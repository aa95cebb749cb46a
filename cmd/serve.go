package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KumarSohan18/comic-repo-public/internal/builder"
	"github.com/KumarSohan18/comic-repo-public/internal/config"
	"github.com/KumarSohan18/comic-repo-public/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd はモデルを1度だけ読み込んで HTTP API を提供するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "コミック生成 API サーバーを起動するのだ。",
	Long: `起動時にテキストと画像のモデルを初期化し、GET / と POST /generate-comic を提供するのだ。
SIGINT / SIGTERM を受け取ると処理中のリクエストを待ってから停止するのだよ。`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けアドレスなのだ（未指定なら HTTP_ADDR か :5000）。")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}

	app, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("Failed to release resources", "error", err)
		}
	}()

	// 初期化に失敗してもサーバーは起動し、/generate-comic は 503 を返すのだ
	if err := app.Manager.Init(ctx); err != nil {
		slog.Error("Model initialization failed", "error", err)
	} else {
		slog.Info("Models initialized")
	}

	gin.SetMode(gin.ReleaseMode)
	handler := server.NewHandler(app.Pipeline, app.Manager, cfg.ResultCacheTTL)
	if err := server.Run(ctx, cfg.HTTPAddr, server.NewRouter(handler), config.DefaultShutdownTimeout); err != nil {
		return fmt.Errorf("サーバーが異常終了したのだ: %w", err)
	}
	slog.Info("Server exited")
	return nil
}
