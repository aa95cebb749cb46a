package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/shouni/go-utils/urlpath"
)

const (
	// GeneratedImagesDirName は生成直後のシーン画像を格納するディレクトリ名です。
	GeneratedImagesDirName = "generated_images"
	// ComicPagesDirName はキャプション付きシーン画像を格納するディレクトリ名です。
	ComicPagesDirName = "comic_pages"

	sceneFilePattern     = "scene_%d.png"
	captionedFilePattern = "scene_%d_with_text.png"
)

var (
	// SceneFileRegex はシーン画像 (scene_1.png 等) に一致し、シーン番号をキャプチャします。
	SceneFileRegex = regexp.MustCompile(`^scene_(\d+)\.png$`)
	// CaptionedFileRegex はキャプション付き画像 (scene_1_with_text.png 等) に一致します。
	CaptionedFileRegex = regexp.MustCompile(`^scene_(\d+)_with_text\.png$`)
)

// SceneFileName はシーン番号から生成画像のファイル名を返します。
func SceneFileName(scene int) string {
	return fmt.Sprintf(sceneFilePattern, scene)
}

// CaptionedFileName はシーン番号からキャプション付き画像のファイル名を返します。
func CaptionedFileName(scene int) string {
	return fmt.Sprintf(captionedFilePattern, scene)
}

// SceneNumberFromFile はファイル名からシーン番号を取り出します。
func SceneNumberFromFile(name string) (int, bool) {
	base := filepath.Base(name)
	for _, re := range []*regexp.Regexp{SceneFileRegex, CaptionedFileRegex} {
		if m := re.FindStringSubmatch(base); m != nil {
			n, err := strconv.Atoi(m[1])
			return n, err == nil
		}
	}
	return 0, false
}

// ResolveOutputPath は、ベースとなるディレクトリパスとファイル名から、
// GCS/ローカルを考慮した最終的な出力パスを生成します。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	return urlpath.ResolvePath(baseDir, fileName)
}

// GenerateIndexedPath は、指定されたベースパスの拡張子の前に連番を挿入し、
// 新しいパス文字列を生成します。index は1以上の整数である必要があります。
// 例: "path/to/image.png", 2 -> "path/to/image_2.png"
func GenerateIndexedPath(basePath string, index int) (string, error) {
	return urlpath.GenerateIndexedPath(basePath, index)
}

// Layout は1リクエスト分の作業ディレクトリ構成です。
//
//	<base>/<id>/generated_images/scene_<n>.png
//	<base>/<id>/comic_pages/scene_<n>_with_text.png
//	<base>/<id>/<id>/<id>.png
type Layout struct {
	BaseDir string
	ID      string
}

// NewLayout は Layout を生成します。ID はパス区切りを含んではいけません。
func NewLayout(baseDir, id string) (Layout, error) {
	if strings.TrimSpace(id) == "" {
		return Layout{}, fmt.Errorf("ID は必須です")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return Layout{}, fmt.Errorf("不正な ID です: %q", id)
	}
	return Layout{BaseDir: baseDir, ID: id}, nil
}

// RootDir はリクエストの作業ルートです。
func (l Layout) RootDir() string {
	return filepath.Join(l.BaseDir, l.ID)
}

// GeneratedImagesDir は生成直後のシーン画像ディレクトリです。
func (l Layout) GeneratedImagesDir() string {
	return filepath.Join(l.RootDir(), GeneratedImagesDirName)
}

// ComicPagesDir はキャプション付き画像ディレクトリです。
func (l Layout) ComicPagesDir() string {
	return filepath.Join(l.RootDir(), ComicPagesDirName)
}

// FinalDir は完成ページの保存ディレクトリです。
func (l Layout) FinalDir() string {
	return filepath.Join(l.RootDir(), l.ID)
}

// PageFileName は page 番号（1始まり）に対応する完成ページのファイル名を返します。
// 1ページ目は "<id>.png"、2ページ目以降は "<id>_2.png" のように連番を付けます。
func (l Layout) PageFileName(page int) (string, error) {
	name := l.ID + ".png"
	if page <= 1 {
		return name, nil
	}
	indexed, err := GenerateIndexedPath(name, page)
	if err != nil {
		return "", fmt.Errorf("ページ %d のファイル名生成に失敗しました: %w", page, err)
	}
	return indexed, nil
}

// PagePath は page 番号に対応する完成ページのローカルパスを返します。
func (l Layout) PagePath(page int) (string, error) {
	name, err := l.PageFileName(page)
	if err != nil {
		return "", err
	}
	return ResolveOutputPath(l.FinalDir(), name)
}

// Ensure は作業ディレクトリをすべて作成します。
func (l Layout) Ensure() error {
	for _, dir := range []string{l.GeneratedImagesDir(), l.ComicPagesDir(), l.FinalDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ディレクトリの作成に失敗しました (%s): %w", dir, err)
		}
	}
	return nil
}
