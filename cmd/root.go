package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// opts は generate サブコマンドのフラグを受け取るのだ。
var opts config.GenerateOptions

var logLevel string

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "ログレベル（debug, info, warn, error）なのだ。")
}

// preRunAppE は、コマンド実行前にログレベルを反映するのだ。
// モデルやストレージの設定チェックは LoadConfig と各ビルダーに任せるのだよ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return fmt.Errorf("不正なログレベル '%s' なのだ: %w", logLevel, err)
	}
	slog.SetLogLoggerLevel(level)
	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
func Execute() {
	clibase.Execute(
		"comic-gen",
		addAppFlags,
		preRunAppE,
		serveCmd,
		generateCmd,
	)
}
