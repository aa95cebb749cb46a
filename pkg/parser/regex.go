package parser

import "regexp"

var (
	// SceneRegex は "scene", "narration", "image_prompt", "dialogue" の4キーが
	// この順序で並んだ断片をキャプチャします。キーの間の空白・改行は任意です。
	// 各値は次のキー（dialogue は閉じ括弧かカンマ）の直前の引用符までを最短一致で取るため、
	// エスケープされていない引用符を値の中に含んでいても途切れません。
	SceneRegex = regexp.MustCompile(`(?s)"scene"\s*:\s*(\d+)\s*,\s*` +
		`"narration"\s*:\s*"(.*?)"\s*,\s*` +
		`"image_prompt"\s*:\s*"(.*?)"\s*,\s*` +
		`"dialogue"\s*:\s*"(.*?)"\s*(?:[,}\]]|$)`)

	// JSONBlockRegex は ```json ... ``` のコードフェンス内を抽出します。
	JSONBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

	// ParagraphRegex は空行（空白のみの行を含む）で段落を区切ります。
	ParagraphRegex = regexp.MustCompile(`\n\s*\n`)
)
