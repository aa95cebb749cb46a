package adapters

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"github.com/patrickmn/go-cache"
	imagekit "github.com/shouni/gemini-image-kit/generator"
	"github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-gemini-client/gemini"
	"github.com/shouni/go-http-kit/httpkit"
	"google.golang.org/genai"
)

const (
	defaultGeminiImageTemperature = float32(0.7)
	assetCacheExpiration          = 30 * time.Minute
	assetCacheCleanupInterval     = time.Hour
	assetCacheTTL                 = time.Hour
)

// panelGenerator は gemini-image-kit の ImageGenerator のうち本アダプターが使うメソッドです。
type panelGenerator interface {
	GenerateMangaPanel(ctx context.Context, req ports.ImagePanelRequest) (*ports.ImageResponse, error)
}

// GeminiImage は gemini-image-kit の GeminiGenerator を使う画像生成ポートです。
// 解像度と steps はモデル側で決まるため、幅と高さはアスペクト比としてのみ使います。
type GeminiImage struct {
	gen   panelGenerator
	model string
}

// NewGeminiImage は Gemini クライアントと画像生成コアを初期化し、GeminiImage を返します。
// 参照画像のダウンロードには httpkit のクライアントを使います。
func NewGeminiImage(ctx context.Context, apiKey, model string, downloadTimeout time.Duration) (*GeminiImage, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	aiClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(defaultGeminiImageTemperature),
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return newGeminiImage(aiClient, httpkit.New(downloadTimeout), model)
}

// newGeminiImage は GeminiImageCore と GeminiGenerator を組み立てます。
func newGeminiImage(aiClient gemini.GenerativeModel, downloader ports.Downloader, model string) (*GeminiImage, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("画像生成モデル名は必須です")
	}
	core, err := imagekit.NewGeminiImageCore(
		aiClient,
		localReader{},
		downloader,
		cache.New(assetCacheExpiration, assetCacheCleanupInterval),
		assetCacheTTL,
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("GeminiImageCore の初期化に失敗しました: %w", err)
	}
	gen, err := imagekit.NewGeminiGenerator(core)
	if err != nil {
		return nil, fmt.Errorf("GeminiGenerator の初期化に失敗しました: %w", err)
	}
	return &GeminiImage{gen: gen, model: model}, nil
}

// GenerateImage は ImageRequest を ports.ImagePanelRequest に変換して1枚生成します。
func (g *GeminiImage) GenerateImage(ctx context.Context, req domain.ImageRequest) (image.Image, error) {
	seed := req.Seed
	resp, err := g.gen.GenerateMangaPanel(ctx, ports.ImagePanelRequest{
		GenerationOptions: ports.GenerationOptions{
			Model:          g.model,
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			AspectRatio:    aspectRatio(req.Width, req.Height),
			Seed:           &seed,
		},
	})
	if err != nil {
		return nil, &domain.UpstreamError{Port: "image", Err: err}
	}

	img, _, err := image.Decode(bytes.NewReader(resp.Data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました (mime: %s): %w", resp.MimeType, err)
	}
	return img, nil
}

// CheckAvailable は生成器が構築済みであれば利用可能とみなします。
func (g *GeminiImage) CheckAvailable(ctx context.Context) error {
	if g.gen == nil {
		return fmt.Errorf("gemini image generator is not initialized")
	}
	return nil
}

// localReader はローカルファイルを参照画像として開く ports.ContentReader です。
type localReader struct{}

func (localReader) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(uri, "file://"))
}

// aspectRatio は幅と高さを Gemini が受け付けるアスペクト比に丸めます。
func aspectRatio(width, height int) string {
	if width <= 0 || height <= 0 || width == height {
		return "1:1"
	}
	r := float64(width) / float64(height)
	switch {
	case r >= 2.0:
		return "21:9"
	case r >= 1.6:
		return "16:9"
	case r >= 1.4:
		return "3:2"
	case r > 1.0:
		return "4:3"
	case r <= 0.6:
		return "9:16"
	case r <= 0.7:
		return "2:3"
	default:
		return "3:4"
	}
}
