package prompts

import (
	_ "embed"
)

const (
	// DefaultSceneCount は物語プロンプトで要求するシーン数です。
	DefaultSceneCount = 10
	// MaxOptionCount は選択肢ラベル A〜Z で表せる上限です。
	MaxOptionCount = 26
)

// StoryData は物語プロンプトに渡す入力です。Genre と Style は空でも構いません。
type StoryData struct {
	Theme       string
	Genre       string
	Style       string
	DontInclude string
	SceneCount  int
}

// QuizData はクイズプロンプトに渡す入力です。
type QuizData struct {
	Story         string
	QuestionCount int
	OptionCount   int
}

// quizView はテンプレートから参照するクイズの値です。
type quizView struct {
	Story         string
	QuestionCount int
	OptionLetters []string
}

var (
	//go:embed story.md
	StoryPrompt string
	//go:embed quiz.md
	QuizPrompt string
)
