package publisher

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendLocal = "local"

	DefaultBucket = "comicimages3upload"
	DefaultRegion = "us-east-1"
)

// Uploader はバイト列をキーで保存し、公開 URL を返すストレージの契約です。
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// S3ObjectURL は S3 の仮想ホスト形式の公開 URL を返します。
func S3ObjectURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, strings.TrimPrefix(key, "/"))
}

// GCSObjectURL は GCS の公開 URL を返します。
func GCSObjectURL(bucket, key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, strings.TrimPrefix(key, "/"))
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("オブジェクトキーは必須です")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("不正なオブジェクトキーです: %q", key)
	}
	return nil
}
