package publisher

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
)

// GCSUploader は Google Cloud Storage にオブジェクトを保存します。
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader は Application Default Credentials で GCS クライアントを構築します。
// 使い終わったら Close を呼んでください。
func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("バケット名は必須です")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCS クライアントの初期化に失敗しました: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Upload は body を gs://<bucket>/<key> に書き込み、公開 URL を返します。
func (u *GCSUploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("GCS への書き込みに失敗しました (gs://%s/%s): %w", u.bucket, key, err)
	}
	// 書き込みの成否は Close で確定する
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("GCS へのアップロードに失敗しました (gs://%s/%s): %w", u.bucket, key, err)
	}

	url := GCSObjectURL(u.bucket, key)
	slog.InfoContext(ctx, "Uploaded object to GCS", "bucket", u.bucket, "key", key, "url", url)
	return url, nil
}

// Close は GCS クライアントを閉じます。
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
