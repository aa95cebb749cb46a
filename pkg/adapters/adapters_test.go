package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"github.com/shouni/go-gemini-client/gemini"
	"github.com/shouni/go-http-kit/httpkit"
	"google.golang.org/genai"
)

func testPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

type slowImage struct {
	active  atomic.Int32
	overlap atomic.Bool
}

func (s *slowImage) GenerateImage(ctx context.Context, req domain.ImageRequest) (image.Image, error) {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	s.active.Add(-1)
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func TestGatedImage_Serializes(t *testing.T) {
	inner := &slowImage{}
	gated := NewGatedImage(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gated.GenerateImage(context.Background(), domain.ImageRequest{}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if inner.overlap.Load() {
		t.Error("ゲート越しの呼び出しが重なりました")
	}
}

func TestGate_CancelWhileWaiting(t *testing.T) {
	g := NewGate()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	called := false
	err := g.Do(ctx, func() error { called = true; return nil })
	close(release)

	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("期限切れのエラーを期待しました: %v", err)
	}
	if called {
		t.Error("ゲートを取得していないのに fn が実行されました")
	}
}

func TestSDAPIImage(t *testing.T) {
	pngData := testPNG(t, color.RGBA{R: 255, A: 255})
	var memoryCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case txt2imgPath:
			var req txt2imgRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			if req.Seed != 42 || req.Width != 512 || req.Steps != 15 || req.CFGScale != 7 {
				t.Errorf("unexpected payload: %+v", req)
			}
			_ = json.NewEncoder(w).Encode(txt2imgResponse{Images: []string{base64.StdEncoding.EncodeToString(pngData)}})
		case memoryPath:
			if memoryCalls.Add(1) == 1 {
				http.Error(w, "warming up", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"ram":{},"cuda":{"system":{"free":1,"used":1,"total":2}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sd, err := NewSDAPIImage(srv.URL, time.Second, fastRetry())
	if err != nil {
		t.Fatalf("NewSDAPIImage: %v", err)
	}

	if err := sd.CheckAvailable(context.Background()); err != nil {
		t.Errorf("CheckAvailable: %v", err)
	}
	if memoryCalls.Load() != 2 {
		t.Errorf("疎通確認は 503 の後に再試行されるべきです: calls=%d", memoryCalls.Load())
	}

	img, err := sd.GenerateImage(context.Background(), domain.ImageRequest{
		Prompt: "p", Width: 512, Height: 512, Steps: 15, GuidanceScale: 7, Seed: 42,
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if r, _, _, _ := img.At(1, 1).RGBA(); r>>8 != 255 {
		t.Errorf("デコード結果が赤ではありません: %v", img.At(1, 1))
	}
}

func TestSDAPIImage_GenerationIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sd, _ := NewSDAPIImage(srv.URL, time.Second, fastRetry())
	_, err := sd.GenerateImage(context.Background(), domain.ImageRequest{Prompt: "p", Width: 512, Height: 512})
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("UpstreamError を期待しました: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("txt2img は1回だけ呼ばれるべきです: calls=%d", calls.Load())
	}
}

func TestSDAPIImage_NoCUDA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ram":{},"cuda":{"error":"no cuda device"}}`))
	}))
	defer srv.Close()

	sd, _ := NewSDAPIImage(srv.URL, time.Second, fastRetry())
	if err := sd.CheckAvailable(context.Background()); err == nil {
		t.Error("CUDA がない場合はエラーを期待しました")
	}
}

func TestOpenAIText(t *testing.T) {
	t.Run("サンプリング設定をそのまま送ること", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != completionsPath {
				http.NotFound(w, r)
				return
			}
			if got := r.Header.Get("Authorization"); got != "Bearer secret" {
				t.Errorf("Authorization = %q", got)
			}
			var req completionRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.TopK != 5 || req.TopP != 0.7 || req.Temperature != 0.9 || req.MaxTokens != 1000 || req.Model != "phi-3" {
				t.Errorf("unexpected payload: %+v", req)
			}
			_, _ = w.Write([]byte(`{"choices":[{"text":"  [story]  ","finish_reason":"stop"}]}`))
		}))
		defer srv.Close()

		o, err := NewOpenAIText(srv.URL, "phi-3", "secret", time.Second, fastRetry())
		if err != nil {
			t.Fatalf("NewOpenAIText: %v", err)
		}
		got, err := o.GenerateText(context.Background(), "prompt", domain.SamplingConfig{Temperature: 0.9, TopP: 0.7, TopK: 5, MaxTokens: 1000})
		if err != nil {
			t.Fatalf("GenerateText: %v", err)
		}
		if got != "[story]" {
			t.Errorf("期待値 %q, 実際の値 %q", "[story]", got)
		}
	})

	t.Run("4xx は再試行せず UpstreamError を返すこと", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad prompt", http.StatusBadRequest)
		}))
		defer srv.Close()

		o, _ := NewOpenAIText(srv.URL, "phi-3", "", time.Second, fastRetry())
		_, err := o.GenerateText(context.Background(), "prompt", domain.SamplingConfig{})
		var ue *domain.UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("UpstreamError を期待しました: %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})
}

// fakeGeminiModel は gemini.GenerativeModel の代わりに固定の画像を返します。
type fakeGeminiModel struct {
	gotModel string
	gotOpts  gemini.GenerateOptions
	gotParts []*genai.Part
	data     []byte
	finish   genai.FinishReason
}

func (f *fakeGeminiModel) GenerateContent(ctx context.Context, modelName string, prompt string) (*gemini.Response, error) {
	return nil, errors.New("not used")
}

func (f *fakeGeminiModel) GenerateWithParts(ctx context.Context, modelName string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	f.gotModel = modelName
	f.gotOpts = opts
	f.gotParts = parts
	return &gemini.Response{RawResponse: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: f.finish,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{Data: f.data, MIMEType: "image/png"}},
			}},
		}},
	}}, nil
}

func (f *fakeGeminiModel) IsVertexAI() bool { return false }

func (f *fakeGeminiModel) UploadFile(ctx context.Context, r io.Reader, mimeType, displayName string) (string, string, error) {
	return "", "", errors.New("not used")
}

func (f *fakeGeminiModel) DeleteFile(ctx context.Context, name string) error { return nil }

func TestGeminiImage_GenerateImage(t *testing.T) {
	fm := &fakeGeminiModel{data: testPNG(t, color.RGBA{B: 255, A: 255}), finish: genai.FinishReasonStop}
	g, err := newGeminiImage(fm, httpkit.New(time.Second), "image-model")
	if err != nil {
		t.Fatalf("newGeminiImage: %v", err)
	}

	img, err := g.GenerateImage(context.Background(), domain.ImageRequest{
		Prompt: "a robot", NegativePrompt: "blurry", Width: 512, Height: 512, Seed: 7,
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("unexpected bounds: %v", img.Bounds())
	}
	if fm.gotModel != "image-model" {
		t.Errorf("model = %q", fm.gotModel)
	}
	if fm.gotOpts.Seed == nil || *fm.gotOpts.Seed != 7 {
		t.Errorf("seed が渡されていません: %+v", fm.gotOpts.Seed)
	}
	if fm.gotOpts.AspectRatio != "1:1" {
		t.Errorf("aspect = %q", fm.gotOpts.AspectRatio)
	}
	if len(fm.gotParts) != 1 || !strings.Contains(fm.gotParts[0].Text, "blurry") {
		t.Errorf("ネガティブプロンプトがテキストに含まれていません: %+v", fm.gotParts)
	}
}

func TestGeminiImage_SafetyStop(t *testing.T) {
	fm := &fakeGeminiModel{data: testPNG(t, color.White), finish: genai.FinishReasonSafety}
	g, err := newGeminiImage(fm, httpkit.New(time.Second), "image-model")
	if err != nil {
		t.Fatalf("newGeminiImage: %v", err)
	}

	_, err = g.GenerateImage(context.Background(), domain.ImageRequest{Prompt: "p", Width: 512, Height: 512})
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) || ue.Port != "image" {
		t.Errorf("image ポートの UpstreamError を期待しました: %v", err)
	}
}

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{512, 512, "1:1"},
		{1024, 576, "16:9"},
		{576, 1024, "9:16"},
		{800, 600, "4:3"},
		{0, 0, "1:1"},
	}
	for _, tt := range tests {
		if got := aspectRatio(tt.w, tt.h); got != tt.want {
			t.Errorf("aspectRatio(%d,%d) = %q, want %q", tt.w, tt.h, got, tt.want)
		}
	}
}

type fakeContentGenerator struct {
	temperature float32
	gotModel    string
	gotPrompt   string
}

func (f *fakeContentGenerator) GenerateContent(ctx context.Context, modelName string, prompt string) (*gemini.Response, error) {
	f.gotModel = modelName
	f.gotPrompt = prompt
	return &gemini.Response{Text: "  story text \n"}, nil
}

func TestGeminiText_GenerateText(t *testing.T) {
	var created []*fakeContentGenerator
	g := newGeminiText("gemini-model", func(ctx context.Context, temperature float32) (gemini.ContentGenerator, error) {
		c := &fakeContentGenerator{temperature: temperature}
		created = append(created, c)
		return c, nil
	})

	for _, temp := range []float64{0.9, 0.2, 0.9} {
		got, err := g.GenerateText(context.Background(), "prompt", domain.SamplingConfig{Temperature: temp})
		if err != nil {
			t.Fatalf("GenerateText: %v", err)
		}
		if got != "story text" {
			t.Errorf("期待値 %q, 実際の値 %q", "story text", got)
		}
	}

	if len(created) != 2 {
		t.Fatalf("クライアントは温度ごとに1つだけ作られるべきです: %d", len(created))
	}
	if created[0].gotModel != "gemini-model" || created[0].gotPrompt != "prompt" {
		t.Errorf("モデル名とプロンプトの順序が不正です: %+v", created[0])
	}
}
