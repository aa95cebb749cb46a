package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
	"github.com/KumarSohan18/comic-repo-public/pkg/parser"
	"github.com/KumarSohan18/comic-repo-public/pkg/prompts"
)

// StorySampling は物語生成に使うサンプリング設定です。
var StorySampling = domain.SamplingConfig{
	Temperature: 0.9,
	TopP:        0.7,
	TopK:        5,
	MaxTokens:   1000,
}

// StoryRunner はテーマから物語を生成し、シーン単位に解析します。
type StoryRunner struct {
	promptBuilder prompts.PromptBuilder
	textPort      domain.TextGenerator
	sampling      domain.SamplingConfig
}

// NewStoryRunner は依存関係を注入して初期化します。
func NewStoryRunner(pb prompts.PromptBuilder, text domain.TextGenerator) (*StoryRunner, error) {
	if pb == nil {
		return nil, fmt.Errorf("PromptBuilder は必須です")
	}
	if text == nil {
		return nil, fmt.Errorf("TextGenerator は必須です")
	}
	return &StoryRunner{promptBuilder: pb, textPort: text, sampling: StorySampling}, nil
}

// Run はプロンプトを組み立ててテキスト生成ポートを呼び出し、結果を段階的に解析します。
// 解析結果の Tier が TierDegraded の場合、Scenes は空です。
func (sr *StoryRunner) Run(ctx context.Context, req domain.ComicRequest) (domain.Story, error) {
	prompt, err := sr.promptBuilder.BuildStory(prompts.StoryData{
		Theme:       req.Theme,
		Genre:       req.Genre,
		Style:       req.Style,
		DontInclude: req.DontInclude,
	})
	if err != nil {
		return domain.Story{}, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	slog.InfoContext(ctx, "StoryRunner: Generating story", "theme", req.Theme, "genre", req.Genre, "style", req.Style)
	start := time.Now()
	raw, err := sr.textPort.GenerateText(ctx, prompt, sr.sampling)
	if err != nil {
		return domain.Story{}, &domain.UpstreamError{Port: "text", Err: err}
	}
	slog.InfoContext(ctx, "StoryRunner: Story generated",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"excerpt", truncateString(raw, 120))

	return parser.ParseStory(raw), nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
