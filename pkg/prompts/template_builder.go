package prompts

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

var (
	ErrEmptyTheme = errors.New("テーマは必須です")
	ErrEmptyStory = errors.New("クイズの元になる物語が空です")
)

// PromptBuilder は物語とクイズの生成プロンプトを組み立てます。
type PromptBuilder interface {
	BuildStory(data StoryData) (string, error)
	BuildQuiz(data QuizData) (string, error)
}

// ComicPromptBuilder は埋め込みの story.md と quiz.md を解析済みで保持します。
type ComicPromptBuilder struct {
	story *template.Template
	quiz  *template.Template
}

// NewComicPromptBuilder は2つのテンプレートを解析して ComicPromptBuilder を返します。
func NewComicPromptBuilder() (*ComicPromptBuilder, error) {
	story, err := parseTemplate("story", StoryPrompt)
	if err != nil {
		return nil, err
	}
	quiz, err := parseTemplate("quiz", QuizPrompt)
	if err != nil {
		return nil, err
	}
	return &ComicPromptBuilder{story: story, quiz: quiz}, nil
}

func parseTemplate(name, content string) (*template.Template, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("プロンプトテンプレート '%s' (go:embed) が空です", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("プロンプト '%s' の解析に失敗: %w", name, err)
	}
	return tmpl, nil
}

// BuildStory は物語生成プロンプトを返します。
// 入力の前後の空白は取り除き、SceneCount が 0 以下なら DefaultSceneCount を使います。
func (b *ComicPromptBuilder) BuildStory(data StoryData) (string, error) {
	data.Theme = strings.TrimSpace(data.Theme)
	if data.Theme == "" {
		return "", ErrEmptyTheme
	}
	data.Genre = strings.TrimSpace(data.Genre)
	data.Style = strings.TrimSpace(data.Style)
	data.DontInclude = strings.TrimSpace(data.DontInclude)
	if data.SceneCount <= 0 {
		data.SceneCount = DefaultSceneCount
	}
	return execute(b.story, data)
}

// BuildQuiz はクイズ生成プロンプトを返します。
// 選択肢の見本は OptionCount に合わせて A) から順に並べます。
func (b *ComicPromptBuilder) BuildQuiz(data QuizData) (string, error) {
	if strings.TrimSpace(data.Story) == "" {
		return "", ErrEmptyStory
	}
	if data.QuestionCount < 1 {
		return "", fmt.Errorf("設問数は1以上である必要があります: %d", data.QuestionCount)
	}
	if data.OptionCount < 2 || data.OptionCount > MaxOptionCount {
		return "", fmt.Errorf("選択肢の数は 2〜%d の範囲である必要があります: %d", MaxOptionCount, data.OptionCount)
	}
	return execute(b.quiz, quizView{
		Story:         data.Story,
		QuestionCount: data.QuestionCount,
		OptionLetters: optionLetters(data.OptionCount),
	})
}

func optionLetters(n int) []string {
	letters := make([]string, n)
	for i := range letters {
		letters[i] = string(rune('A' + i))
	}
	return letters
}

func execute(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("プロンプトテンプレート '%s' の実行に失敗しました: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
