package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/internal/config"
	"github.com/KumarSohan18/comic-repo-public/internal/pipeline"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// generateCmd は、サーバーを立てずに1回だけコミックを生成するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "テーマからコミックとクイズを1回だけ生成するのだ。",
	Long: `物語の生成、シーン画像の描画、キャプション合成、ページ合成、アップロード、クイズ生成を順番に実行するのだ。
端末に出力するときは表で、パイプやリダイレクト先には JSON で結果を書き出すのだよ。`,
	RunE: generateCommand,
}

func init() {
	generateCmd.Flags().StringVarP(&opts.Theme, "theme", "t", "", "物語のテーマなのだ（必須）。")
	generateCmd.Flags().StringVarP(&opts.Genre, "genre", "g", "", "物語のジャンルなのだ。")
	generateCmd.Flags().StringVarP(&opts.Style, "style", "s", "", "画像のスタイルなのだ。")
	generateCmd.Flags().StringVar(&opts.DontInclude, "dont-include", "", "物語に含めない要素なのだ。")
	generateCmd.Flags().StringVar(&opts.ID, "id", "", "リクエスト ID なのだ（未指定なら自動採番）。")
	generateCmd.Flags().BoolVar(&opts.JSON, "json", false, "端末でも JSON で出力するのだ。")
	_ = generateCmd.MarkFlagRequired("theme")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	cfg.Options = opts

	slog.Info("Starting comic generation",
		"theme", opts.Theme,
		"genre", opts.Genre,
		"style", opts.Style,
		"text_backend", cfg.TextBackend,
		"image_backend", cfg.ImageBackend,
		"storage", cfg.StorageBackend)

	result, err := pipeline.Execute(ctx, cfg)
	if err != nil {
		return fmt.Errorf("コミック生成中にエラーが発生したのだ: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.JSON || !isTerminal(os.Stdout) {
		return writeJSON(out, result)
	}
	writeTable(out, result)
	return nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// resultJSON は API のレスポンスと同じ形で結果を書き出すためのものなのだ。
type resultJSON struct {
	UUID     string   `json:"uuid"`
	ImageURL string   `json:"image_url"`
	PageURLs []string `json:"page_urls"`
	MCQs     []string `json:"mcqs"`
	Tier     string   `json:"parse_tier"`
	Rendered int      `json:"rendered_scenes"`
}

func writeJSON(w io.Writer, r *domain.ComicResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resultJSON{
		UUID:     r.ID,
		ImageURL: r.ImageURL,
		PageURLs: r.PageURLs,
		MCQs:     r.Quiz,
		Tier:     string(r.Tier),
		Rendered: r.RenderedCount(),
	})
}

func writeTable(w io.Writer, r *domain.ComicResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRow(table.Row{"UUID", r.ID})
	tw.AppendRow(table.Row{"Parse tier", string(r.Tier)})
	tw.AppendRow(table.Row{"Rendered scenes", fmt.Sprintf("%d/%d", r.RenderedCount(), len(r.Rendered))})
	for i, u := range r.PageURLs {
		tw.AppendRow(table.Row{fmt.Sprintf("Page %d", i+1), u})
	}
	for i, q := range r.Quiz {
		tw.AppendRow(table.Row{fmt.Sprintf("Quiz %d", i+1), strings.TrimSpace(q)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, WidthMax: 100},
	})
	tw.Render()
}
