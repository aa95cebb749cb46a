package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

// geminiClientFactory は温度ごとの Gemini クライアントを生成します。
type geminiClientFactory func(ctx context.Context, temperature float32) (gemini.ContentGenerator, error)

// GeminiText は go-gemini-client を使うテキスト生成ポートです。
// クライアントは温度単位で設定されるため、温度ごとに生成して使い回します。
// TopP などその他のサンプリング設定はクライアント側の既定値に従います。
type GeminiText struct {
	model     string
	newClient geminiClientFactory
	clients   *cache.Cache
}

// NewGeminiText は GeminiText を生成します。
func NewGeminiText(apiKey, model string) (*GeminiText, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("Gemini モデル名は必須です")
	}
	factory := func(ctx context.Context, temperature float32) (gemini.ContentGenerator, error) {
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      apiKey,
			Temperature: genai.Ptr(temperature),
		})
	}
	return newGeminiText(model, factory), nil
}

func newGeminiText(model string, factory geminiClientFactory) *GeminiText {
	return &GeminiText{
		model:     model,
		newClient: factory,
		clients:   cache.New(cache.NoExpiration, 0),
	}
}

// GenerateText は温度に対応するクライアントで GenerateContent を呼び出します。
func (g *GeminiText) GenerateText(ctx context.Context, prompt string, cfg domain.SamplingConfig) (string, error) {
	client, err := g.clientFor(ctx, float32(cfg.Temperature))
	if err != nil {
		return "", &domain.UpstreamError{Port: "text", Err: err}
	}

	resp, err := client.GenerateContent(ctx, g.model, prompt)
	if err != nil {
		return "", &domain.UpstreamError{Port: "text", Err: err}
	}
	return strings.TrimSpace(resp.Text), nil
}

func (g *GeminiText) clientFor(ctx context.Context, temperature float32) (gemini.ContentGenerator, error) {
	key := strconv.FormatFloat(float64(temperature), 'f', -1, 32)
	if c, ok := g.clients.Get(key); ok {
		return c.(gemini.ContentGenerator), nil
	}

	client, err := g.newClient(ctx, temperature)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	g.clients.Set(key, client, cache.NoExpiration)
	return client, nil
}
