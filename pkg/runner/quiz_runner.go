package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
	"github.com/KumarSohan18/comic-repo-public/pkg/prompts"
)

const (
	DefaultQuestionCount = 3
	DefaultOptionCount   = 4
)

// QuizSampling はクイズ生成に使うサンプリング設定です。
var QuizSampling = domain.SamplingConfig{
	Temperature:      0.2,
	TopP:             0.95,
	MaxTokens:        1000,
	FrequencyPenalty: 0.1,
	PresencePenalty:  0.1,
}

// questionHeadRegex は "1. **Question 1: ..." 形式の設問の先頭行に一致します。
var questionHeadRegex = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]*\*\*Question`)

// QuizRunner は完成した物語から多肢選択式のクイズを生成します。
type QuizRunner struct {
	promptBuilder prompts.PromptBuilder
	textPort      domain.TextGenerator
	questions     int
	options       int
}

// NewQuizRunner は依存関係を注入して初期化します。
func NewQuizRunner(pb prompts.PromptBuilder, text domain.TextGenerator) (*QuizRunner, error) {
	if pb == nil {
		return nil, fmt.Errorf("PromptBuilder は必須です")
	}
	if text == nil {
		return nil, fmt.Errorf("TextGenerator は必須です")
	}
	return &QuizRunner{
		promptBuilder: pb,
		textPort:      text,
		questions:     DefaultQuestionCount,
		options:       DefaultOptionCount,
	}, nil
}

// Run は story を JSON として埋め込んだプロンプトでクイズを生成し、設問ごとに分割して返します。
func (qr *QuizRunner) Run(ctx context.Context, story domain.StoryMap) ([]string, error) {
	storyJSON, err := json.MarshalIndent(story.Ordered(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("物語のエンコードに失敗しました: %w", err)
	}

	prompt, err := qr.promptBuilder.BuildQuiz(prompts.QuizData{
		Story:         string(storyJSON),
		QuestionCount: qr.questions,
		OptionCount:   qr.options,
	})
	if err != nil {
		return nil, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	slog.InfoContext(ctx, "QuizRunner: Generating quiz", "questions", qr.questions)
	raw, err := qr.textPort.GenerateText(ctx, prompt, QuizSampling)
	if err != nil {
		return nil, &domain.UpstreamError{Port: "text", Err: err}
	}

	quiz := SplitQuestions(raw)
	if len(quiz) != qr.questions {
		slog.WarnContext(ctx, "Unexpected number of quiz questions", "expected", qr.questions, "actual", len(quiz))
	}
	return quiz, nil
}

// SplitQuestions は生成テキストを設問ごとに分割します。
// 設問の区切りが見つからない場合は、テキスト全体を1要素として返します。
// 空文字の場合は nil です。
func SplitQuestions(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	heads := questionHeadRegex.FindAllStringIndex(raw, -1)
	if len(heads) == 0 {
		return []string{raw}
	}

	questions := make([]string, 0, len(heads))
	for i, h := range heads {
		end := len(raw)
		if i+1 < len(heads) {
			end = heads[i+1][0]
		}
		if q := strings.TrimSpace(raw[h[0]:end]); q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}
