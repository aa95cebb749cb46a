package compositor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/pkg/asset"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"golang.org/x/image/draw"
)

const (
	PersistFirst = "first"
	PersistAll   = "all"

	borderWidth = 1
)

// ParsePersistMode は永続化モード名を検証して正規化します。空文字は first とみなします。
func ParsePersistMode(mode string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "", PersistFirst:
		return PersistFirst, nil
	case PersistAll:
		return PersistAll, nil
	default:
		return "", fmt.Errorf("サポートされていないページ保存モード: '%s'。サポートされているモードは [%s, %s] です", mode, PersistAll, PersistFirst)
	}
}

// Compositor は同じサイズに揃えた画像を行優先でグリッドに並べ、ページを作ります。
type Compositor struct {
	grid   Grid
	scaler draw.Interpolator
}

// New は Compositor を初期化します。
func New(grid Grid) (*Compositor, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return &Compositor{grid: grid, scaler: draw.ApproxBiLinear}, nil
}

// Grid は使用中のグリッド設定を返します。
func (c *Compositor) Grid() Grid {
	return c.grid
}

// Compose は images を入力順に配置し、PerPage 枚ごとに新しいページを返します。
// 各画像はセルサイズに縮尺され、1px の黒枠を付けてからセルの左上に貼り付けられます。
// nil の画像は配置しません。
func (c *Compositor) Compose(images []image.Image) []*image.RGBA {
	var pages []*image.RGBA
	var page *image.RGBA
	placed := 0

	for _, img := range images {
		if img == nil {
			continue
		}
		if placed%c.grid.PerPage() == 0 {
			page = c.newPage()
			pages = append(pages, page)
			slog.Debug("Creating page", "page", len(pages))
		}
		c.paste(page, img, c.grid.CellOrigin(placed))
		placed++
	}
	return pages
}

// ComposeFiles は paths の画像を読み込んで Compose します。
// 読み込めない画像は警告を出してレイアウトから除外します。
func (c *Compositor) ComposeFiles(ctx context.Context, paths []string) ([]*image.RGBA, error) {
	images := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := loadImage(p)
		if err != nil {
			slog.WarnContext(ctx, "Skipping image that could not be loaded", "error", &domain.IOError{Path: p, Err: err})
			continue
		}
		images = append(images, img)
	}
	return c.Compose(images), nil
}

func (c *Compositor) newPage() *image.RGBA {
	size := c.grid.CanvasSize()
	page := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(page, page.Bounds(), image.White, image.Point{}, draw.Src)
	return page
}

// paste は img をセルサイズに縮尺し、黒枠付きで origin に貼り付けます。
// 枠の分だけ画像は origin から1px内側に置かれます。
func (c *Compositor) paste(page *image.RGBA, img image.Image, origin image.Point) {
	w, h := c.grid.CellWidth, c.grid.CellHeight
	framed := image.Rect(0, 0, w+2*borderWidth, h+2*borderWidth).Add(origin)
	draw.Draw(page, framed, image.NewUniform(color.Black), image.Point{}, draw.Src)

	inner := image.Rect(0, 0, w, h).Add(origin).Add(image.Pt(borderWidth, borderWidth))
	c.scaler.Scale(page, inner, img, img.Bounds(), draw.Src, nil)
}

// SavePages はページを layout の完成ディレクトリに保存します。
// PersistFirst の場合は1ページ目のみ、PersistAll の場合は全ページを保存し、保存したパスを返します。
func SavePages(pages []*image.RGBA, layout asset.Layout, mode string) ([]string, error) {
	mode, err := ParsePersistMode(mode)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("保存するページがありません")
	}
	if err := os.MkdirAll(layout.FinalDir(), 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	toSave := pages
	if mode == PersistFirst {
		toSave = pages[:1]
	}

	paths := make([]string, 0, len(toSave))
	for i, page := range toSave {
		path, err := layout.PagePath(i + 1)
		if err != nil {
			return paths, err
		}
		if err := savePNG(path, page); err != nil {
			return paths, fmt.Errorf("ページ %d の保存に失敗しました: %w", i+1, err)
		}
		slog.Info("Saved page", "page", i+1, "path", path)
		paths = append(paths, path)
	}
	if len(pages) > len(toSave) {
		slog.Info("Skipped persisting additional pages", "pages", len(pages), "persisted", len(toSave), "mode", mode)
	}
	return paths, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func savePNG(path string, img image.Image) error {
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
