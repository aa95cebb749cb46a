package domain

import (
	"context"
	"image"
)

// SamplingConfig はテキスト生成時のサンプリング設定です。
// ゼロ値のフィールドはバックエンドのデフォルトに任せます。
type SamplingConfig struct {
	Temperature      float64
	TopP             float64
	TopK             int
	MaxTokens        int
	FrequencyPenalty float64
	PresencePenalty  float64
}

// TextGenerator はプロンプトから生テキストを返すテキスト生成ポートです。
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, cfg SamplingConfig) (string, error)
}

// ImageRequest は画像生成ポートへの1回分の入力です。
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
	Seed           int64
}

// ImageGenerator は画像生成ポートです。
// 実装は同時呼び出しに対して安全である必要はありません。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (image.Image, error)
}

// AvailabilityChecker は、ポートが計算資源（GPU など）を利用可能かを確認できる場合に実装します。
type AvailabilityChecker interface {
	CheckAvailable(ctx context.Context) error
}
