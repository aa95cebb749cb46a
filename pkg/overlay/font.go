package overlay

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const (
	DefaultFontSize = 20.0
	DefaultFontDPI  = 72.0
)

// FontConfig はキャプション描画に使うフォントの設定です。
// Path が空の場合は同梱の Go Regular を使います。
type FontConfig struct {
	Path string
	Size float64
	DPI  float64
}

// NewFace は FontConfig から font.Face を生成します。
// 返される Face は並行利用に対して安全ではありません。
func NewFace(cfg FontConfig) (font.Face, error) {
	data := goregular.TTF
	if cfg.Path != "" {
		b, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("フォントファイルの読み込みに失敗しました (%s): %w", cfg.Path, err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("フォントの解析に失敗しました: %w", err)
	}

	size := cfg.Size
	if size <= 0 {
		size = DefaultFontSize
	}
	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = DefaultFontDPI
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("フォントフェイスの生成に失敗しました: %w", err)
	}
	return face, nil
}
