package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/internal/config"
	"github.com/KumarSohan18/comic-repo-public/pkg/adapters"
	"github.com/KumarSohan18/comic-repo-public/pkg/compositor"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
	"github.com/KumarSohan18/comic-repo-public/pkg/generator"
	"github.com/KumarSohan18/comic-repo-public/pkg/overlay"
	"github.com/KumarSohan18/comic-repo-public/pkg/publisher"
	"github.com/KumarSohan18/comic-repo-public/pkg/workflow"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持します。
// Manager の Init と Close は呼び出し側（serve / generate）の責務です。
type AppContext struct {
	Config   *config.Config     // 環境変数から読み込まれた設定
	Manager  *workflow.Manager  // モデルハンドルのライフサイクル管理
	Pipeline *workflow.Pipeline // 1リクエスト分のコミック生成

	closers []io.Closer
}

// NewAppContext は設定から Manager・Uploader・Pipeline を構築します。
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	textFactory, err := BuildTextFactory(cfg)
	if err != nil {
		return nil, err
	}
	imageFactory, err := BuildImageFactory(cfg)
	if err != nil {
		return nil, err
	}

	manager, err := workflow.NewManager(workflow.ManagerArgs{Text: textFactory, Image: imageFactory})
	if err != nil {
		return nil, err
	}

	uploader, err := BuildUploader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &AppContext{Config: cfg, Manager: manager}
	if c, ok := uploader.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	pub, err := publisher.New(uploader, "")
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	opts, err := BuildPipelineOptions(cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Pipeline, err = workflow.NewPipeline(opts, manager, pub)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("パイプラインの初期化に失敗しました: %w", err)
	}
	return app, nil
}

// Close はモデルハンドルとストレージクライアントを解放します。
func (a *AppContext) Close() error {
	errs := []error{a.Manager.Close()}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// BuildTextFactory は TEXT_BACKEND に応じたテキスト生成ポートの構築関数を返します。
func BuildTextFactory(cfg *config.Config) (workflow.TextFactory, error) {
	switch strings.ToLower(cfg.TextBackend) {
	case "openai", "vllm":
		return func(context.Context) (domain.TextGenerator, error) {
			slog.Info("Initializing text model", "backend", "openai", "base_url", cfg.TextBaseURL, "model", cfg.TextModel)
			return adapters.NewOpenAIText(cfg.TextBaseURL, cfg.TextModel, cfg.TextAPIKey, cfg.HTTPTimeout, adapters.DefaultRetryPolicy())
		}, nil
	case "gemini":
		return func(context.Context) (domain.TextGenerator, error) {
			slog.Info("Initializing text model", "backend", "gemini", "model", cfg.GeminiModel)
			return adapters.NewGeminiText(cfg.GeminiAPIKey, cfg.GeminiModel)
		}, nil
	default:
		return nil, fmt.Errorf("サポートされていないテキスト生成バックエンド: '%s'。サポートされているのは [gemini, openai] です", cfg.TextBackend)
	}
}

// BuildImageFactory は IMAGE_BACKEND に応じた画像生成ポートの構築関数を返します。
func BuildImageFactory(cfg *config.Config) (workflow.ImageFactory, error) {
	switch strings.ToLower(cfg.ImageBackend) {
	case "sdapi":
		return func(context.Context) (domain.ImageGenerator, error) {
			slog.Info("Initializing image model", "backend", "sdapi", "base_url", cfg.ImageBaseURL)
			// 1枚の生成に数十秒かかるため、HTTP タイムアウトはシーンの期限に合わせる
			return adapters.NewSDAPIImage(cfg.ImageBaseURL, cfg.RenderTaskTimeout, adapters.DefaultRetryPolicy())
		}, nil
	case "gemini":
		return func(ctx context.Context) (domain.ImageGenerator, error) {
			slog.Info("Initializing image model", "backend", "gemini", "model", cfg.ImageGeminiModel)
			return adapters.NewGeminiImage(ctx, cfg.GeminiAPIKey, cfg.ImageGeminiModel, cfg.HTTPTimeout)
		}, nil
	default:
		return nil, fmt.Errorf("サポートされていない画像生成バックエンド: '%s'。サポートされているのは [gemini, sdapi] です", cfg.ImageBackend)
	}
}

// BuildUploader は STORAGE_BACKEND に応じた Uploader を構築します。
func BuildUploader(ctx context.Context, cfg *config.Config) (publisher.Uploader, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case publisher.BackendS3:
		return publisher.NewS3Uploader(ctx, cfg.StorageBucket, cfg.AWSRegion)
	case publisher.BackendGCS:
		return publisher.NewGCSUploader(ctx, cfg.StorageBucket)
	case publisher.BackendLocal:
		dir := cfg.StorageLocalDir
		if dir == "" {
			dir = cfg.OutputDirBase
		}
		return publisher.NewLocalUploader(dir, cfg.StoragePublicBaseURL)
	default:
		return nil, fmt.Errorf("サポートされていないストレージ: '%s'。サポートされているのは [%s, %s, %s] です",
			cfg.StorageBackend, publisher.BackendGCS, publisher.BackendLocal, publisher.BackendS3)
	}
}

// BuildPipelineOptions は設定値を各コンポーネントのオプションに変換します。
func BuildPipelineOptions(cfg *config.Config) (workflow.Options, error) {
	opts := workflow.DefaultOptions()
	opts.OutputBaseDir = cfg.OutputDirBase
	opts.PersistMode = cfg.PagePersistMode

	seed, err := generator.ParseSeedStrategy(cfg.SeedStrategy, cfg.Seed)
	if err != nil {
		return workflow.Options{}, err
	}
	opts.Render.Concurrency = cfg.RenderConcurrency
	opts.Render.SceneLimit = cfg.RenderSceneLimit
	opts.Render.TaskTimeout = cfg.RenderTaskTimeout
	opts.Render.RateInterval = cfg.RenderRateInterval
	opts.Render.Seed = seed

	opts.Overlay.CaptionField = cfg.OverlayCaptionField
	opts.Overlay.Font = overlay.FontConfig{Path: cfg.OverlayFontPath, Size: cfg.OverlayFontSize, DPI: overlay.DefaultFontDPI}

	opts.Grid = compositor.Grid{
		Rows:       cfg.PageGridRows,
		Cols:       cfg.PageGridCols,
		CellWidth:  cfg.PageCellSize,
		CellHeight: cfg.PageCellSize,
		Padding:    cfg.PagePadding,
	}
	if err := opts.Grid.Validate(); err != nil {
		return workflow.Options{}, err
	}
	if _, err := compositor.ParsePersistMode(opts.PersistMode); err != nil {
		return workflow.Options{}, err
	}
	return opts, nil
}
