package publisher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// LocalUploader はオブジェクトをローカルディレクトリにコピーします。
// PublicBaseURL が設定されていればその配下の URL を、なければファイルパスを返します。
type LocalUploader struct {
	Dir           string
	PublicBaseURL string
}

// NewLocalUploader は LocalUploader を生成します。
func NewLocalUploader(dir, publicBaseURL string) (*LocalUploader, error) {
	if dir == "" {
		return nil, fmt.Errorf("保存先ディレクトリは必須です")
	}
	return &LocalUploader{Dir: dir, PublicBaseURL: publicBaseURL}, nil
}

// Upload は body を Dir/key に書き込みます。
func (u *LocalUploader) Upload(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(u.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("保存先ディレクトリの作成に失敗しました: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("ファイルの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("ファイルの書き込みに失敗しました (%s): %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if u.PublicBaseURL == "" {
		return dst, nil
	}
	return url.JoinPath(u.PublicBaseURL, key)
}
