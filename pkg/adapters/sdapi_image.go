package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
)

const (
	txt2imgPath = "/sdapi/v1/txt2img"
	memoryPath  = "/sdapi/v1/memory"
)

// singleAttempt は失敗したシーンを再生成しないための設定です。
var singleAttempt = RetryPolicy{MaxAttempts: 1}

// SDAPIImage は Stable Diffusion WebUI 互換 API (/sdapi/v1/txt2img) を使う画像生成ポートです。
// サーバー側のパイプラインは再入不可能なため、呼び出し側で GatedImage に包んで使います。
type SDAPIImage struct {
	baseURL    string
	httpClient *http.Client
	checkRetry RetryPolicy
}

// NewSDAPIImage は SDAPIImage を生成します。
// checkRetry は CheckAvailable にだけ適用され、txt2img は失敗しても再試行しません。
func NewSDAPIImage(baseURL string, timeout time.Duration, checkRetry RetryPolicy) (*SDAPIImage, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("画像生成APIのベースURLは必須です")
	}
	return &SDAPIImage{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		checkRetry: checkRetry,
	}, nil
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Seed           int64   `json:"seed"`
	BatchSize      int     `json:"batch_size"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// GenerateImage は txt2img を呼び出し、先頭の画像をデコードして返します。
func (s *SDAPIImage) GenerateImage(ctx context.Context, req domain.ImageRequest) (image.Image, error) {
	payload := txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		CFGScale:       req.GuidanceScale,
		Seed:           req.Seed,
		BatchSize:      1,
	}

	var resp txt2imgResponse
	if err := doJSON(ctx, s.httpClient, singleAttempt, http.MethodPost, s.baseURL+txt2imgPath, payload, &resp); err != nil {
		return nil, &domain.UpstreamError{Port: "image", Err: err}
	}
	if len(resp.Images) == 0 {
		return nil, &domain.UpstreamError{Port: "image", Err: errors.New("txt2img returned no images")}
	}

	return decodeBase64Image(resp.Images[0])
}

type memoryResponse struct {
	CUDA map[string]any `json:"cuda"`
}

// CheckAvailable は /sdapi/v1/memory を確認し、CUDA デバイスが報告されない場合はエラーを返します。
func (s *SDAPIImage) CheckAvailable(ctx context.Context) error {
	var resp memoryResponse
	if err := doJSON(ctx, s.httpClient, s.checkRetry, http.MethodGet, s.baseURL+memoryPath, nil, &resp); err != nil {
		return fmt.Errorf("画像生成サーバーに接続できません: %w", err)
	}
	if len(resp.CUDA) == 0 {
		return errors.New("CUDA is not available")
	}
	if msg, ok := resp.CUDA["error"]; ok {
		return fmt.Errorf("CUDA is not available: %v", msg)
	}
	return nil
}

// decodeBase64Image は data URI の接頭辞を許容して base64 画像をデコードします。
func decodeBase64Image(encoded string) (image.Image, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("画像の base64 デコードに失敗しました: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}
	return img, nil
}
