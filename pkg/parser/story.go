package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
)

// rawScene は JSON 配列要素のデコード先です。
type rawScene struct {
	Scene       json.Number `json:"scene"`
	Narration   string      `json:"narration"`
	ImagePrompt string      `json:"image_prompt"`
	Dialogue    string      `json:"dialogue"`
}

// ParseStory は生成テキストを段階的に解析します。
//  1. JSON 配列としての厳密な解析
//  2. SceneRegex による寛容なスキャン
//  3. 空行での段落分割（StoryMap は空のまま）
//
// どの段階で成功したかは Story.Tier に記録されます。
func ParseStory(raw string) domain.Story {
	raw = strings.TrimSpace(raw)

	if scenes, err := parseStructured(raw); err == nil {
		slog.Info("物語を JSON として解析しました", "tier", domain.TierStructured, "scenes", len(scenes))
		return domain.Story{Tier: domain.TierStructured, Scenes: scenes, Raw: raw}
	} else {
		slog.Debug("JSON 解析に失敗したため寛容スキャンに切り替えます", "error", err)
	}

	if scenes, err := Extract(raw); err == nil {
		slog.Info("物語を寛容スキャンで復元しました", "tier", domain.TierTolerant, "scenes", len(scenes))
		return domain.Story{Tier: domain.TierTolerant, Scenes: scenes, Raw: raw}
	}

	fragments := SplitParagraphs(raw)
	slog.Warn("段落分割にフォールバックしました", "tier", domain.TierDegraded, "fragments", len(fragments), "excerpt", truncateString(raw, 200))
	return domain.Story{Tier: domain.TierDegraded, Fragments: fragments, Raw: raw}
}

// parseStructured はテキスト中の JSON 配列を厳密にデコードします。
func parseStructured(raw string) (domain.StoryMap, error) {
	rawJSON := raw
	if m := JSONBlockRegex.FindStringSubmatch(raw); len(m) > 1 {
		rawJSON = m[1]
	}

	first := strings.Index(rawJSON, "[")
	last := strings.LastIndex(rawJSON, "]")
	if first == -1 || last <= first {
		return nil, fmt.Errorf("JSON 配列が見つかりませんでした")
	}

	var items []rawScene
	if err := json.Unmarshal([]byte(rawJSON[first:last+1]), &items); err != nil {
		return nil, fmt.Errorf("JSON 配列のデコードに失敗しました: %w", err)
	}

	story := domain.StoryMap{}
	for _, item := range items {
		num, err := item.Scene.Int64()
		if err != nil {
			slog.Warn("シーン番号を解釈できないためスキップします", "scene", item.Scene.String())
			continue
		}
		addScene(story, domain.Scene{
			Number:      int(num),
			Narration:   item.Narration,
			ImagePrompt: item.ImagePrompt,
			Dialogue:    item.Dialogue,
		})
	}

	if len(story) == 0 {
		return nil, domain.NewNoValidScenesError()
	}
	return story, nil
}

// SplitParagraphs は空行でテキストを区切り、空でない段落を順に返します。
func SplitParagraphs(raw string) []string {
	var out []string
	for _, p := range ParagraphRegex.Split(raw, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
