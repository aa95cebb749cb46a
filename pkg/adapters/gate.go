package adapters

import (
	"context"
	"fmt"
	"image"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"golang.org/x/sync/semaphore"
)

// Gate は同時実行を1つに制限する排他ゲートです。
// sync.Mutex と異なり、待機中に context のキャンセルを受け付けます。
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate は新しい Gate を生成します。
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Do はゲートを取得して fn を実行し、fn の終了後に解放します。
// ゲートを取得する前に ctx が終了した場合は fn を実行しません。
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ゲートの取得を中断しました: %w", err)
	}
	defer g.sem.Release(1)
	return fn()
}

// GatedImage は再入不可能な ImageGenerator への呼び出しを直列化します。
type GatedImage struct {
	inner domain.ImageGenerator
	gate  *Gate
}

// NewGatedImage は inner をゲートで包みます。
func NewGatedImage(inner domain.ImageGenerator) *GatedImage {
	return &GatedImage{inner: inner, gate: NewGate()}
}

// GenerateImage はゲートを保持している間だけ inner を呼び出します。
func (g *GatedImage) GenerateImage(ctx context.Context, req domain.ImageRequest) (image.Image, error) {
	var img image.Image
	err := g.gate.Do(ctx, func() error {
		var err error
		img, err = g.inner.GenerateImage(ctx, req)
		return err
	})
	return img, err
}

// CheckAvailable は inner が AvailabilityChecker を実装していれば委譲します。
func (g *GatedImage) CheckAvailable(ctx context.Context) error {
	if c, ok := g.inner.(domain.AvailabilityChecker); ok {
		return c.CheckAvailable(ctx)
	}
	return nil
}

// Unwrap は包んでいる ImageGenerator を返します。
func (g *GatedImage) Unwrap() domain.ImageGenerator { return g.inner }

// GatedText は TextGenerator への呼び出しを直列化します。
type GatedText struct {
	inner domain.TextGenerator
	gate  *Gate
}

// NewGatedText は inner をゲートで包みます。
func NewGatedText(inner domain.TextGenerator) *GatedText {
	return &GatedText{inner: inner, gate: NewGate()}
}

// GenerateText はゲートを保持している間だけ inner を呼び出します。
func (g *GatedText) GenerateText(ctx context.Context, prompt string, cfg domain.SamplingConfig) (string, error) {
	var out string
	err := g.gate.Do(ctx, func() error {
		var err error
		out, err = g.inner.GenerateText(ctx, prompt, cfg)
		return err
	})
	return out, err
}

// Unwrap は包んでいる TextGenerator を返します。
func (g *GatedText) Unwrap() domain.TextGenerator { return g.inner }
