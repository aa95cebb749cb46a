package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/asset"
	"github.com/KumarSohan18/comic-repo-public/pkg/compositor"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
	"github.com/KumarSohan18/comic-repo-public/pkg/generator"
	"github.com/KumarSohan18/comic-repo-public/pkg/overlay"
	"github.com/KumarSohan18/comic-repo-public/pkg/prompts"
	"github.com/KumarSohan18/comic-repo-public/pkg/publisher"
	"github.com/KumarSohan18/comic-repo-public/pkg/runner"

	"github.com/gofrs/flock"
)

const DefaultOutputBaseDir = "output"

// ErrInProgress は同じ ID のリクエストが別の場所で処理中であることを示します。
var ErrInProgress = errors.New("同じ ID のコミックを生成中です")

// Options はパイプライン全体の設定です。
type Options struct {
	OutputBaseDir string
	PersistMode   string
	QualitySuffix string
	Render        generator.RenderOptions
	Overlay       overlay.Options
	Grid          compositor.Grid
}

// DefaultOptions は既定値で埋めた Options を返します。
func DefaultOptions() Options {
	return Options{
		OutputBaseDir: DefaultOutputBaseDir,
		PersistMode:   compositor.PersistFirst,
		QualitySuffix: prompts.DefaultQualitySuffix,
		Render:        generator.DefaultRenderOptions(),
		Overlay:       overlay.DefaultOptions(),
		Grid:          compositor.DefaultGrid(),
	}
}

// Pipeline は1リクエスト分のコミック生成を、物語生成から公開まで順に実行します。
// 複数のゴルーチンから同時に Generate を呼び出せます。
type Pipeline struct {
	opts          Options
	manager       *Manager
	promptBuilder prompts.PromptBuilder
	coordinator   *generator.RenderCoordinator
	compositor    *compositor.Compositor
	publisher     *publisher.Publisher
}

// NewPipeline は Pipeline を初期化します。
func NewPipeline(opts Options, m *Manager, pub *publisher.Publisher) (*Pipeline, error) {
	if m == nil {
		return nil, fmt.Errorf("Manager は必須です")
	}
	if pub == nil {
		return nil, fmt.Errorf("Publisher は必須です")
	}
	if opts.OutputBaseDir == "" {
		opts.OutputBaseDir = DefaultOutputBaseDir
	}
	mode, err := compositor.ParsePersistMode(opts.PersistMode)
	if err != nil {
		return nil, err
	}
	opts.PersistMode = mode

	// フォント設定の誤りは起動時に検出する
	if _, err := overlay.NewEngine(opts.Overlay); err != nil {
		return nil, fmt.Errorf("テキストオーバーレイの初期化に失敗しました: %w", err)
	}

	pb, err := prompts.NewComicPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("ComicPromptBuilder の新規作成に失敗しました: %w", err)
	}
	comp, err := compositor.New(opts.Grid)
	if err != nil {
		return nil, fmt.Errorf("ページ合成の初期化に失敗しました: %w", err)
	}

	return &Pipeline{
		opts:          opts,
		manager:       m,
		promptBuilder: pb,
		coordinator:   generator.NewRenderCoordinator(opts.Render, prompts.NewImagePromptBuilder(opts.QualitySuffix)),
		compositor:    comp,
		publisher:     pub,
	}, nil
}

// Generate は req からコミックと小テストを生成し、公開 URL を含む結果を返します。
// 物語からシーンを1つも得られなかった場合は domain.ExtractionError を返します。
// 個々のシーンの描画失敗は結果の Rendered に記録されるだけで、処理は続行します。
func (p *Pipeline) Generate(ctx context.Context, req domain.ComicRequest) (*domain.ComicResult, error) {
	start := time.Now()
	logger := slog.With("id", req.ID)

	text, err := p.manager.Text()
	if err != nil {
		return nil, &domain.PreconditionError{Err: err}
	}
	image, err := p.manager.Image()
	if err != nil {
		return nil, &domain.PreconditionError{Err: err}
	}

	layout, err := asset.NewLayout(p.opts.OutputBaseDir, req.ID)
	if err != nil {
		return nil, err
	}
	unlock, err := p.lock(layout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := layout.Ensure(); err != nil {
		return nil, &domain.IOError{Path: layout.RootDir(), Err: err}
	}

	// --- Phase 1: 物語 ---
	storyRunner, err := runner.NewStoryRunner(p.promptBuilder, text)
	if err != nil {
		return nil, err
	}
	story, err := storyRunner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if !story.HasScenes() {
		logger.WarnContext(ctx, "No scenes could be recovered from the story", "tier", story.Tier, "fragments", len(story.Fragments))
		return nil, domain.NewNoValidScenesError()
	}
	logger.InfoContext(ctx, "Story parsed", "tier", story.Tier, "scenes", len(story.Scenes))

	// --- Phase 2: 小テスト ---
	quizRunner, err := runner.NewQuizRunner(p.promptBuilder, text)
	if err != nil {
		return nil, err
	}
	quiz, err := quizRunner.Run(ctx, story.Scenes)
	if err != nil {
		return nil, err
	}

	// --- Phase 3: 画像生成 ---
	rendered, err := p.coordinator.Render(ctx, story.Scenes, image, layout.GeneratedImagesDir())
	if err != nil {
		return nil, err
	}

	// --- Phase 4: キャプションとページ合成 ---
	engine, err := overlay.NewEngine(p.opts.Overlay)
	if err != nil {
		return nil, err
	}
	captioned, err := engine.Apply(ctx, story.Scenes, layout.GeneratedImagesDir(), layout.ComicPagesDir())
	if err != nil {
		return nil, err
	}
	pages, err := p.compositor.ComposeFiles(ctx, captioned)
	if err != nil {
		return nil, err
	}
	pagePaths, err := compositor.SavePages(pages, layout, p.opts.PersistMode)
	if err != nil {
		return nil, fmt.Errorf("ページの保存に失敗しました: %w", err)
	}

	// --- Phase 5: 公開 ---
	urls, err := p.publisher.Publish(ctx, pagePaths)
	if err != nil {
		return nil, err
	}

	result := &domain.ComicResult{
		ID:        req.ID,
		ImageURL:  urls[0],
		PageURLs:  urls,
		Quiz:      quiz,
		Tier:      story.Tier,
		Rendered:  rendered,
		PagePaths: pagePaths,
	}
	logger.InfoContext(ctx, "Comic generated",
		"rendered", result.RenderedCount(),
		"scenes", len(story.Scenes),
		"pages", len(pages),
		"url", result.ImageURL,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// lock は <base>/<id>.lock をプロセス間ロックとして取得し、解放関数を返します。
func (p *Pipeline) lock(layout asset.Layout) (func(), error) {
	if err := os.MkdirAll(layout.BaseDir, 0o755); err != nil {
		return nil, &domain.IOError{Path: layout.BaseDir, Err: err}
	}
	lockPath := filepath.Join(layout.BaseDir, layout.ID+".lock")
	fl := flock.New(lockPath)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ロックの取得に失敗しました: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInProgress, layout.ID)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("Failed to release lock", "path", lockPath, "error", err)
		}
		_ = os.Remove(lockPath)
	}, nil
}
