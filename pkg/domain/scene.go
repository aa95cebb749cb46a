package domain

import (
	"slices"
	"strings"
)

// Scene は物語の1シーン（ナレーション・画像プロンプト・台詞）を表します。
type Scene struct {
	Number      int    `json:"scene"`
	Narration   string `json:"narration"`
	ImagePrompt string `json:"image_prompt"`
	Dialogue    string `json:"dialogue"`
}

// Trimmed は各テキストフィールドの前後の空白を取り除いたコピーを返します。
func (s Scene) Trimmed() Scene {
	return Scene{
		Number:      s.Number,
		Narration:   strings.TrimSpace(s.Narration),
		ImagePrompt: strings.TrimSpace(s.ImagePrompt),
		Dialogue:    strings.TrimSpace(s.Dialogue),
	}
}

// IsComplete は、シーン番号が正で、かつ全テキストフィールドが空でないかを判定します。
func (s Scene) IsComplete() bool {
	return s.Number > 0 &&
		strings.TrimSpace(s.Narration) != "" &&
		strings.TrimSpace(s.ImagePrompt) != "" &&
		strings.TrimSpace(s.Dialogue) != ""
}

// StoryMap はシーン番号からシーンへの対応表です。
// 反復は常に Numbers() の昇順で行います。
type StoryMap map[int]Scene

// Numbers はシーン番号を昇順で返します。
func (m StoryMap) Numbers() []int {
	nums := make([]int, 0, len(m))
	for n := range m {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	return nums
}

// Ordered はシーンをシーン番号の昇順で返します。
func (m StoryMap) Ordered() []Scene {
	nums := m.Numbers()
	scenes := make([]Scene, 0, len(nums))
	for _, n := range nums {
		scenes = append(scenes, m[n])
	}
	return scenes
}

// ParseTier は物語テキストの解析がどの段階で成功したかを示します。
type ParseTier string

const (
	// TierStructured は JSON 配列として厳密に解析できたことを示します。
	TierStructured ParseTier = "structured"
	// TierTolerant は正規表現による寛容なスキャンで復元したことを示します。
	TierTolerant ParseTier = "tolerant"
	// TierDegraded は空行での段落分割にフォールバックしたことを示します。
	// この場合 Scenes は空で、Fragments のみが埋まります。
	TierDegraded ParseTier = "degraded"
)

// Story は生成テキストの解析結果です。
type Story struct {
	Tier      ParseTier
	Scenes    StoryMap
	Fragments []string
	Raw       string
}

// HasScenes は利用可能なシーンが1件以上あるかを返します。
func (s Story) HasScenes() bool {
	return len(s.Scenes) > 0
}
