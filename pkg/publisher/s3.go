package publisher

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// putObjectAPI は S3Uploader が使う S3 クライアントのメソッドです。
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader は Amazon S3 にオブジェクトを保存します。
type S3Uploader struct {
	client putObjectAPI
	bucket string
	region string
}

// NewS3Uploader は既定の認証情報チェーン（環境変数、共有設定、IAM ロール）から S3 クライアントを構築します。
func NewS3Uploader(ctx context.Context, bucket, region string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("バケット名は必須です")
	}
	if region == "" {
		region = DefaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("AWS 設定の読み込みに失敗しました: %w", err)
	}
	return newS3Uploader(s3.NewFromConfig(cfg), bucket, region), nil
}

func newS3Uploader(client putObjectAPI, bucket, region string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, region: region}
}

// Upload は body を key に保存し、仮想ホスト形式の URL を返します。
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("S3 へのアップロードに失敗しました (s3://%s/%s): %w", u.bucket, key, err)
	}

	url := S3ObjectURL(u.bucket, u.region, key)
	slog.InfoContext(ctx, "Uploaded object to S3", "bucket", u.bucket, "key", key, "url", url)
	return url, nil
}
