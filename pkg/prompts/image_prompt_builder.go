package prompts

import (
	"fmt"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
)

const (
	// DefaultQualitySuffix は全シーン共通で画像プロンプトの末尾に付与する品質指定です。
	DefaultQualitySuffix = "Ultra HD, 4K, cinematic composition."

	// dialogueInstruction は台詞を吹き出しとして描かせる固定の指示文です。
	dialogueInstruction = ` Render the following dialogue in a speech bubble: "%s". Maintain environment setup and character consistency.`
)

// ImagePromptBuilder はシーンから画像生成用のプロンプトを組み立てます。
type ImagePromptBuilder struct {
	qualitySuffix string
}

// NewImagePromptBuilder は新しい ImagePromptBuilder を生成します。
// suffix が空の場合は DefaultQualitySuffix を使います。
func NewImagePromptBuilder(suffix string) *ImagePromptBuilder {
	if suffix == "" {
		suffix = DefaultQualitySuffix
	}
	return &ImagePromptBuilder{qualitySuffix: suffix}
}

// BuildScenePrompt は image_prompt、台詞の吹き出し指示、品質サフィックスを連結します。
func (pb *ImagePromptBuilder) BuildScenePrompt(scene domain.Scene) string {
	var sb strings.Builder
	sb.WriteString(scene.ImagePrompt)
	sb.WriteString(fmt.Sprintf(dialogueInstruction, scene.Dialogue))
	sb.WriteString(pb.qualitySuffix)
	return sb.String()
}

// NegativePrompt は画像生成時の除外指定です。現状は常に空です。
func (pb *ImagePromptBuilder) NegativePrompt() string {
	return ""
}
