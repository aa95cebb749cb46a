package runner

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
	"github.com/KumarSohan18/comic-repo-public/pkg/prompts"
)

type fakeText struct {
	reply   string
	err     error
	prompts []string
	configs []domain.SamplingConfig
}

func (f *fakeText) GenerateText(_ context.Context, prompt string, cfg domain.SamplingConfig) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.configs = append(f.configs, cfg)
	return f.reply, f.err
}

func newBuilder(t *testing.T) *prompts.ComicPromptBuilder {
	t.Helper()
	pb, err := prompts.NewComicPromptBuilder()
	if err != nil {
		t.Fatalf("NewComicPromptBuilder: %v", err)
	}
	return pb
}

func TestStoryRunner_Run(t *testing.T) {
	reply := `[
  {"scene": 1, "narration": "A fox wakes.", "image_prompt": "fox in den", "dialogue": "Morning!"},
  {"scene": 2, "narration": "It runs.", "image_prompt": "fox running", "dialogue": "Go!"}
]`
	text := &fakeText{reply: reply}
	sr, err := NewStoryRunner(newBuilder(t), text)
	if err != nil {
		t.Fatal(err)
	}

	story, err := sr.Run(context.Background(), domain.ComicRequest{Theme: "photosynthesis", Genre: "adventure", Style: "watercolor", DontInclude: "violence"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if story.Tier != domain.TierStructured {
		t.Errorf("Tier: 期待値 %v, 実際の値 %v", domain.TierStructured, story.Tier)
	}
	if len(story.Scenes) != 2 {
		t.Errorf("シーン数: 期待値 2, 実際の値 %d", len(story.Scenes))
	}

	if got := text.configs[0]; got != StorySampling {
		t.Errorf("サンプリング設定: 期待値 %+v, 実際の値 %+v", StorySampling, got)
	}
	for _, want := range []string{"photosynthesis", "adventure", "watercolor", "violence"} {
		if !strings.Contains(text.prompts[0], want) {
			t.Errorf("プロンプトに %q が含まれていません", want)
		}
	}
}

func TestStoryRunner_UpstreamError(t *testing.T) {
	sr, _ := NewStoryRunner(newBuilder(t), &fakeText{err: errors.New("boom")})
	_, err := sr.Run(context.Background(), domain.ComicRequest{Theme: "x"})

	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("UpstreamError を期待しました: %v", err)
	}
}

func TestNewStoryRunner_RequiresDependencies(t *testing.T) {
	if _, err := NewStoryRunner(nil, &fakeText{}); err == nil {
		t.Error("PromptBuilder が nil の場合はエラーになるべきです")
	}
	if _, err := NewStoryRunner(newBuilder(t), nil); err == nil {
		t.Error("TextGenerator が nil の場合はエラーになるべきです")
	}
}

func TestSplitQuestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"空", "  ", nil},
		{"区切りなし", "What is light?\nA) x", []string{"What is light?\nA) x"}},
		{
			"3問",
			"1. **Question 1: Light**\n   - A) a\n   - Correct Answer: A\n\n2. **Question 2: Water**\n   - B) b\n3. **Question 3: Air**\n   - C) c",
			[]string{
				"1. **Question 1: Light**\n   - A) a\n   - Correct Answer: A",
				"2. **Question 2: Water**\n   - B) b",
				"3. **Question 3: Air**\n   - C) c",
			},
		},
		{
			"前置きは捨てる",
			"Here are your questions:\n1. **Question 1: Sun**\n - A) a",
			[]string{"1. **Question 1: Sun**\n - A) a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitQuestions(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("期待値 %q, 実際の値 %q", tt.want, got)
			}
		})
	}
}

func TestQuizRunner_Run(t *testing.T) {
	text := &fakeText{reply: "1. **Question 1: A**\n- A) x\n2. **Question 2: B**\n- A) y\n3. **Question 3: C**\n- A) z"}
	qr, err := NewQuizRunner(newBuilder(t), text)
	if err != nil {
		t.Fatal(err)
	}

	story := domain.StoryMap{
		2: {Number: 2, Narration: "second", ImagePrompt: "p2", Dialogue: "d2"},
		1: {Number: 1, Narration: "first", ImagePrompt: "p1", Dialogue: "d1"},
	}
	quiz, err := qr.Run(context.Background(), story)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(quiz) != 3 {
		t.Errorf("設問数: 期待値 3, 実際の値 %d", len(quiz))
	}
	if got := text.configs[0]; got != QuizSampling {
		t.Errorf("サンプリング設定: 期待値 %+v, 実際の値 %+v", QuizSampling, got)
	}

	p := text.prompts[0]
	if strings.Index(p, "first") > strings.Index(p, "second") {
		t.Error("物語はシーン番号順に埋め込まれるべきです")
	}
}
