package parser

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
)

// Extract は生成テキストを寛容にスキャンし、シーン番号順の StoryMap を返します。
// JSON として正しい必要はなく、前後のゴミや途中で切れた配列も許容します。
// 空のフィールドを持つシーンは警告付きで除外し、同じシーン番号は後勝ちで上書きします。
// 有効なシーンが1件もなければ domain.ExtractionError を返します。
func Extract(raw string) (domain.StoryMap, error) {
	story := domain.StoryMap{}

	for _, m := range SceneRegex.FindAllStringSubmatch(raw, -1) {
		num, err := strconv.Atoi(m[1])
		if err != nil {
			slog.Warn("シーン番号を解釈できないためスキップします", "scene", m[1], "error", err)
			continue
		}

		scene := domain.Scene{
			Number:      num,
			Narration:   unescape(m[2]),
			ImagePrompt: unescape(m[3]),
			Dialogue:    unescape(m[4]),
		}
		addScene(story, scene)
	}

	if len(story) == 0 {
		return nil, domain.NewNoValidScenesError()
	}
	return story, nil
}

// addScene はトリム済みのシーンを検証し、有効なら story に格納します。
func addScene(story domain.StoryMap, scene domain.Scene) bool {
	scene = scene.Trimmed()
	if !scene.IsComplete() {
		slog.Warn("空のフィールドを含むシーンを除外します",
			"scene", scene.Number,
			"narration_empty", scene.Narration == "",
			"image_prompt_empty", scene.ImagePrompt == "",
			"dialogue_empty", scene.Dialogue == "",
		)
		return false
	}
	if _, dup := story[scene.Number]; dup {
		slog.Debug("重複したシーン番号を上書きします", "scene", scene.Number)
	}
	story[scene.Number] = scene
	return true
}

// unescape は JSON 文字列リテラルとしてのエスケープ（\/ や \uXXXX を含む）を解除します。
// 解除できない場合はキャプチャした文字列をそのまま返します。
func unescape(s string) string {
	var v string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &v); err == nil {
		return v
	}
	return s
}
