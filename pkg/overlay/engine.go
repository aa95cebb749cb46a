package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/pkg/asset"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultBandHeight = 70
	DefaultMargin     = 40

	CaptionNarration = "narration"
	CaptionDialogue  = "dialogue"
)

var (
	// DefaultBandColor は半透明の白です。
	DefaultBandColor = color.NRGBA{R: 255, G: 255, B: 255, A: 90}
	// DefaultTextColor は不透明の黒です。
	DefaultTextColor = color.NRGBA{A: 255}
)

// Options は TextOverlayEngine の描画設定です。
type Options struct {
	BandHeight   int
	Margin       int
	BandColor    color.Color
	TextColor    color.Color
	CaptionField string
	Font         FontConfig
}

// DefaultOptions は既定値で埋めた Options を返します。
func DefaultOptions() Options {
	return Options{
		BandHeight:   DefaultBandHeight,
		Margin:       DefaultMargin,
		BandColor:    DefaultBandColor,
		TextColor:    DefaultTextColor,
		CaptionField: CaptionNarration,
		Font:         FontConfig{Size: DefaultFontSize, DPI: DefaultFontDPI},
	}
}

// Engine はシーン画像の下部に帯を敷き、折り返したキャプションを中央に描画します。
// font.Face を共有するため、1つの Engine を複数ゴルーチンから同時に使ってはいけません。
type Engine struct {
	opts Options
	face font.Face
}

// NewEngine は Engine を初期化します。
func NewEngine(opts Options) (*Engine, error) {
	if opts.BandHeight <= 0 {
		opts.BandHeight = DefaultBandHeight
	}
	if opts.Margin < 0 {
		opts.Margin = DefaultMargin
	}
	if opts.BandColor == nil {
		opts.BandColor = DefaultBandColor
	}
	if opts.TextColor == nil {
		opts.TextColor = DefaultTextColor
	}
	switch opts.CaptionField {
	case "":
		opts.CaptionField = CaptionNarration
	case CaptionNarration, CaptionDialogue:
	default:
		return nil, fmt.Errorf("サポートされていないキャプション項目: '%s'", opts.CaptionField)
	}

	face, err := NewFace(opts.Font)
	if err != nil {
		return nil, err
	}
	return &Engine{opts: opts, face: face}, nil
}

// Measure は現在のフォントで s を描画したときの幅（ピクセル）を返します。
func (e *Engine) Measure(s string) int {
	return font.MeasureString(e.face, s).Ceil()
}

// Apply はストーリー順に inputDir の scene_<n>.png を読み込み、
// キャプションを描画して outputDir に scene_<n>_with_text.png として保存します。
// 見つからない・読めない画像は警告を出してスキップします。
// 戻り値は保存できたファイルのパス（シーン番号順）です。
func (e *Engine) Apply(ctx context.Context, story domain.StoryMap, inputDir, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	var written []string
	for _, scene := range story.Ordered() {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		logger := slog.With("scene", scene.Number)
		src := filepath.Join(inputDir, asset.SceneFileName(scene.Number))

		img, err := loadImage(src)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("Image not found, skipping caption", "path", src)
			} else {
				logger.Warn("Failed to load image, skipping caption", "error", &domain.IOError{Path: src, Err: err})
			}
			continue
		}

		annotated := e.Annotate(img, e.captionFor(scene))
		dst := filepath.Join(outputDir, asset.CaptionedFileName(scene.Number))
		if err := writePNG(dst, annotated); err != nil {
			logger.Warn("Failed to save captioned image", "error", err)
			continue
		}
		logger.Info("Saved captioned image", "path", dst)
		written = append(written, dst)
	}
	return written, nil
}

func (e *Engine) captionFor(scene domain.Scene) string {
	if e.opts.CaptionField == CaptionDialogue {
		return scene.Dialogue
	}
	return scene.Narration
}

// Annotate は img の下部に半透明の帯とキャプションを描画し、不透明な画像として返します。
func (e *Engine) Annotate(img image.Image, text string) *image.RGBA {
	b := img.Bounds()
	canvas := image.NewRGBA(b)
	draw.Draw(canvas, b, img, b.Min, draw.Src)

	bandTop := b.Max.Y - e.opts.BandHeight
	if bandTop < b.Min.Y {
		bandTop = b.Min.Y
	}
	band := image.Rect(b.Min.X, bandTop, b.Max.X, b.Max.Y)
	draw.Draw(canvas, band, image.NewUniform(e.opts.BandColor), image.Point{}, draw.Over)

	lines := Wrap(text, band.Dx()-e.opts.Margin, e.Measure)
	if len(lines) > 0 {
		e.drawLines(canvas, band, lines)
	}

	return flatten(canvas)
}

// drawLines は行の塊を帯の中央（水平・垂直）に配置して描画します。
func (e *Engine) drawLines(dst draw.Image, band image.Rectangle, lines []string) {
	metrics := e.face.Metrics()
	lineHeight := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()

	blockWidth := 0
	for _, l := range lines {
		blockWidth = max(blockWidth, e.Measure(l))
	}
	blockHeight := lineHeight * len(lines)

	x := band.Min.X + (band.Dx()-blockWidth)/2
	y := band.Min.Y + (band.Dy()-blockHeight)/2

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(e.opts.TextColor),
		Face: e.face,
	}
	for i, l := range lines {
		d.Dot = fixed.P(x, y+ascent+i*lineHeight)
		d.DrawString(l)
	}
}

// flatten は白背景に合成してアルファを取り除きます。
func flatten(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, image.White, image.Point{}, draw.Src)
	draw.Draw(out, b, src, b.Min, draw.Over)
	return out
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	if !strings.HasSuffix(path, ".png") {
		return fmt.Errorf("PNG 以外の出力には対応していません: %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
