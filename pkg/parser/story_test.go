package parser

import (
	"reflect"
	"testing"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
)

func TestParseStory(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantTier   domain.ParseTier
		wantScenes []int
		wantFrags  int
	}{
		{
			name: "コードフェンス付きの正しいJSON配列",
			raw: "```json\n[" +
				`{"scene": 2, "narration": "b", "image_prompt": "pb", "dialogue": "db"},` +
				`{"scene": 1, "narration": "a", "image_prompt": "pa", "dialogue": "da"}` +
				"]\n```",
			wantTier:   domain.TierStructured,
			wantScenes: []int{1, 2},
		},
		{
			name: "閉じ括弧のない配列は寛容スキャン",
			raw: `BEGIN JSON ARRAY: [` +
				`{"scene": 1, "narration": "a", "image_prompt": "pa", "dialogue": "da"},` +
				`{"scene": 3, "narration": "c", "image_prompt": "pc", "dialogue": "dc"},`,
			wantTier:   domain.TierTolerant,
			wantScenes: []int{1, 3},
		},
		{
			name:      "散文のみの場合は段落分割",
			raw:       "Once upon a time.\n\nThere was a robot.\n  \nThe end.",
			wantTier:  domain.TierDegraded,
			wantFrags: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStory(tt.raw)
			if got.Tier != tt.wantTier {
				t.Fatalf("期待値 %s, 実際の値 %s", tt.wantTier, got.Tier)
			}
			if tt.wantScenes != nil && !reflect.DeepEqual(got.Scenes.Numbers(), tt.wantScenes) {
				t.Errorf("シーン番号: 期待値 %v, 実際の値 %v", tt.wantScenes, got.Scenes.Numbers())
			}
			if got.Tier == domain.TierDegraded {
				if got.HasScenes() {
					t.Error("段落分割ではシーンを持たないはずです")
				}
				if len(got.Fragments) != tt.wantFrags {
					t.Errorf("段落数: 期待値 %d, 実際の値 %d (%q)", tt.wantFrags, len(got.Fragments), got.Fragments)
				}
			}
		})
	}
}

func TestParseStory_StructuredDropsIncompleteScenes(t *testing.T) {
	raw := `[{"scene": 1, "narration": " ", "image_prompt": "p", "dialogue": "d"},
{"scene": 2, "narration": "ok", "image_prompt": "p", "dialogue": "d"}]`

	got := ParseStory(raw)
	if got.Tier != domain.TierStructured {
		t.Fatalf("tier = %s", got.Tier)
	}
	if !reflect.DeepEqual(got.Scenes.Numbers(), []int{2}) {
		t.Errorf("scenes = %v", got.Scenes.Numbers())
	}
}
