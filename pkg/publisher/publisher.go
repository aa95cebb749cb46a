package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"
)

const pngContentType = "image/png"

// Publisher は完成ページをストレージにアップロードします。
type Publisher struct {
	uploader Uploader
	prefix   string
}

// New は Publisher を生成します。prefix はオブジェクトキーの先頭に付与されます（空なら付与しません）。
func New(uploader Uploader, prefix string) (*Publisher, error) {
	if uploader == nil {
		return nil, fmt.Errorf("Uploader は必須です")
	}
	return &Publisher{uploader: uploader, prefix: prefix}, nil
}

// Key はページファイルのオブジェクトキーを返します（例: "<id>.png"）。
func (p *Publisher) Key(pagePath string) string {
	name := filepath.Base(pagePath)
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Publish は pagePaths を順にアップロードして URL を返します。
// どれか1つでも失敗した場合はその時点でエラーを返します。
func (p *Publisher) Publish(ctx context.Context, pagePaths []string) ([]string, error) {
	if len(pagePaths) == 0 {
		return nil, fmt.Errorf("アップロードするページがありません")
	}

	start := time.Now()
	urls := make([]string, 0, len(pagePaths))
	for _, pagePath := range pagePaths {
		url, err := p.uploadFile(ctx, pagePath)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}

	slog.InfoContext(ctx, "Published pages", "count", len(urls), "elapsed", time.Since(start).Round(time.Millisecond))
	return urls, nil
}

func (p *Publisher) uploadFile(ctx context.Context, pagePath string) (string, error) {
	f, err := os.Open(pagePath)
	if err != nil {
		return "", fmt.Errorf("ページファイルを開けませんでした (%s): %w", pagePath, err)
	}
	defer f.Close()

	url, err := p.uploader.Upload(ctx, p.Key(pagePath), f, pngContentType)
	if err != nil {
		return "", fmt.Errorf("ページのアップロードに失敗しました: %w", err)
	}
	return url, nil
}
