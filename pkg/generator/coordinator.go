package generator

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/adapters"
	"github.com/KumarSohan18/comic-repo-public/pkg/asset"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
	"github.com/KumarSohan18/comic-repo-public/pkg/prompts"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultConcurrency   = 4
	DefaultSceneLimit    = 4
	DefaultImageWidth    = 512
	DefaultImageHeight   = 512
	DefaultSteps         = 15
	DefaultGuidanceScale = 7.0
	DefaultTaskTimeout   = 5 * time.Minute
)

// RenderOptions は RenderCoordinator の動作設定です。
type RenderOptions struct {
	Concurrency   int           // 同時に走らせるワーカー数
	SceneLimit    int           // 投入するシーン数の上限（0 以下で無制限）
	Width         int           // 出力画像の幅
	Height        int           // 出力画像の高さ
	Steps         int           // 推論ステップ数
	GuidanceScale float64       // CFG スケール
	TaskTimeout   time.Duration // シーンごとの期限（0 以下で無制限）
	RateInterval  time.Duration // ポート呼び出しの最小間隔（0 以下で無制限）
	Seed          SeedStrategy
}

// DefaultRenderOptions は既定値で埋めた RenderOptions を返します。
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Concurrency:   DefaultConcurrency,
		SceneLimit:    DefaultSceneLimit,
		Width:         DefaultImageWidth,
		Height:        DefaultImageHeight,
		Steps:         DefaultSteps,
		GuidanceScale: DefaultGuidanceScale,
		TaskTimeout:   DefaultTaskTimeout,
		Seed:          FixedSeed(DefaultSeed),
	}
}

// RenderTask はワーカーが処理する1シーン分の仕事です。
type RenderTask struct {
	Scene  int
	Prompt string
}

// RenderCoordinator は、シーンごとの画像生成をワーカープールに分配しつつ、
// 画像生成ポートへの呼び出しだけを排他ゲートで直列化します。
type RenderCoordinator struct {
	opts          RenderOptions
	promptBuilder *prompts.ImagePromptBuilder
	limiter       *rate.Limiter
	gate          *adapters.Gate
}

// NewRenderCoordinator は RenderCoordinator を初期化します。
func NewRenderCoordinator(opts RenderOptions, pb *prompts.ImagePromptBuilder) *RenderCoordinator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Seed == nil {
		opts.Seed = FixedSeed(DefaultSeed)
	}
	if pb == nil {
		pb = prompts.NewImagePromptBuilder("")
	}

	limit := rate.Inf
	if opts.RateInterval > 0 {
		limit = rate.Every(opts.RateInterval)
	}

	return &RenderCoordinator{
		opts:          opts,
		promptBuilder: pb,
		limiter:       rate.NewLimiter(limit, 1),
		gate:          adapters.NewGate(),
	}
}

// Tasks はストーリーの先頭から SceneLimit 件までのタスクをシーン番号順に組み立てます。
func (rc *RenderCoordinator) Tasks(story domain.StoryMap) []RenderTask {
	scenes := story.Ordered()
	if rc.opts.SceneLimit > 0 && len(scenes) > rc.opts.SceneLimit {
		scenes = scenes[:rc.opts.SceneLimit]
	}

	tasks := make([]RenderTask, 0, len(scenes))
	for _, s := range scenes {
		tasks = append(tasks, RenderTask{Scene: s.Number, Prompt: rc.promptBuilder.BuildScenePrompt(s)})
	}
	return tasks
}

// Render は各シーンの画像を生成して outputDir に scene_<n>.png として保存し、
// シーン番号ごとの成否を返します。
// 個々のシーンの失敗（期限切れを含む）は結果に記録するだけで、他のシーンは中断しません。
// 全タスクが終了するまで戻りません。
// ポートが AvailabilityChecker を実装していれば投入前に一度だけ確認し、
// 失敗した場合は domain.PreconditionError を返します。
func (rc *RenderCoordinator) Render(ctx context.Context, story domain.StoryMap, port domain.ImageGenerator, outputDir string) (map[int]bool, error) {
	if port == nil {
		return nil, &domain.PreconditionError{Err: fmt.Errorf("画像生成ポートは必須です")}
	}
	if checker, ok := port.(domain.AvailabilityChecker); ok {
		if err := checker.CheckAvailable(ctx); err != nil {
			return nil, &domain.PreconditionError{Err: err}
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	tasks := rc.Tasks(story)
	slog.InfoContext(ctx, "Starting scene rendering",
		"tasks", len(tasks),
		"scenes", len(story),
		"concurrency", rc.opts.Concurrency,
		"seed_strategy", rc.opts.Seed.Name())

	results := make(map[int]bool, len(tasks))
	var mu sync.Mutex

	var eg errgroup.Group
	eg.SetLimit(rc.opts.Concurrency)

	for _, task := range tasks {
		eg.Go(func() error {
			err := rc.renderScene(ctx, port, task, outputDir)

			mu.Lock()
			results[task.Scene] = err == nil
			mu.Unlock()

			if err != nil {
				slog.ErrorContext(ctx, "Scene rendering failed", "error", &domain.RenderError{Scene: task.Scene, Err: err})
			}
			return nil
		})
	}
	_ = eg.Wait()

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	slog.InfoContext(ctx, "All scene rendering finished", "succeeded", succeeded, "failed", len(results)-succeeded)

	return results, nil
}

type renderOutcome struct {
	img image.Image
	err error
}

// renderScene は1シーン分を生成して保存します。
// 期限切れになった場合、ポート呼び出しが戻るまでゲートは保持されたままです。
func (rc *RenderCoordinator) renderScene(ctx context.Context, port domain.ImageGenerator, task RenderTask, outputDir string) error {
	taskCtx := ctx
	if rc.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, rc.opts.TaskTimeout)
		defer cancel()
	}

	logger := slog.With("scene", task.Scene)

	if err := rc.limiter.Wait(taskCtx); err != nil {
		return fmt.Errorf("レート制限の待機を中断しました: %w", err)
	}

	req := domain.ImageRequest{
		Prompt:         task.Prompt,
		NegativePrompt: rc.promptBuilder.NegativePrompt(),
		Width:          rc.opts.Width,
		Height:         rc.opts.Height,
		Steps:          rc.opts.Steps,
		GuidanceScale:  rc.opts.GuidanceScale,
		Seed:           rc.opts.Seed.Seed(task.Scene),
	}

	done := make(chan renderOutcome, 1)
	go func() {
		var img image.Image
		err := rc.gate.Do(taskCtx, func() error {
			logger.Info("Starting scene generation", "seed", req.Seed)
			start := time.Now()
			var err error
			img, err = port.GenerateImage(taskCtx, req)
			logger.Info("Scene generation returned", "duration", time.Since(start).Round(time.Millisecond))
			return err
		})
		done <- renderOutcome{img: img, err: err}
	}()

	var out renderOutcome
	select {
	case out = <-done:
	case <-taskCtx.Done():
		return fmt.Errorf("シーン %d の生成が期限内に終わりませんでした: %w", task.Scene, taskCtx.Err())
	}
	if out.err != nil {
		return out.err
	}
	if out.img == nil {
		return fmt.Errorf("シーン %d の生成結果が空です", task.Scene)
	}

	path := filepath.Join(outputDir, asset.SceneFileName(task.Scene))
	if err := savePNG(path, out.img); err != nil {
		return err
	}
	logger.Info("Saved scene image", "path", path)
	return nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("画像ファイルの作成に失敗しました (%s): %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("PNG エンコードに失敗しました (%s): %w", path, err)
	}
	return f.Close()
}
