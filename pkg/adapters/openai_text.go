package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"github.com/shouni/go-http-kit/httpkit"
)

const completionsPath = "/v1/completions"

// OpenAIText は vLLM などの OpenAI 互換 /v1/completions エンドポイントを使うテキスト生成ポートです。
type OpenAIText struct {
	baseURL string
	model   string
	client  *httpkit.Client
}

// NewOpenAIText は OpenAIText を生成します。
// 再試行は httpkit に任せ、4xx は1回で打ち切ります。推論サーバーは内部ネットワークにあるため SSRF 検証は行いません。
func NewOpenAIText(baseURL, model, apiKey string, timeout time.Duration, retry RetryPolicy) (*OpenAIText, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("テキスト生成APIのベースURLは必須です")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("テキスト生成モデル名は必須です")
	}
	retries := retry.MaxAttempts - 1
	if retries < 1 {
		retries = 1
	}
	client := httpkit.New(timeout,
		httpkit.WithHTTPClient(&http.Client{Timeout: timeout, Transport: bearerTransport(apiKey)}),
		httpkit.WithSkipNetworkValidation(true),
		httpkit.WithMaxRetries(uint64(retries)),
		httpkit.WithInitialInterval(retry.BaseDelay),
		httpkit.WithMaxInterval(retry.MaxDelay),
	)
	return &OpenAIText{baseURL: baseURL, model: model, client: client}, nil
}

type completionRequest struct {
	Model            string  `json:"model"`
	Prompt           string  `json:"prompt"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p,omitempty"`
	TopK             int     `json:"top_k,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateText は completions API を呼び出し、先頭候補のテキストを返します。
func (o *OpenAIText) GenerateText(ctx context.Context, prompt string, cfg domain.SamplingConfig) (string, error) {
	payload := completionRequest{
		Model:            o.model,
		Prompt:           prompt,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		TopK:             cfg.TopK,
		MaxTokens:        cfg.MaxTokens,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	raw, err := o.client.DoRequest(req)
	if err != nil {
		return "", &domain.UpstreamError{Port: "text", Err: err}
	}
	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &domain.UpstreamError{Port: "text", Err: fmt.Errorf("レスポンスのデコードに失敗しました: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.UpstreamError{Port: "text", Err: errors.New("completion returned no choices")}
	}
	return strings.TrimSpace(resp.Choices[0].Text), nil
}

type bearerRoundTripper struct {
	token string
	next  http.RoundTripper
}

func (b *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(req)
}

// bearerTransport は apiKey が空でなければ Authorization ヘッダーを付与する Transport を返します。
func bearerTransport(apiKey string) http.RoundTripper {
	if strings.TrimSpace(apiKey) == "" {
		return http.DefaultTransport
	}
	return &bearerRoundTripper{token: apiKey, next: http.DefaultTransport}
}
