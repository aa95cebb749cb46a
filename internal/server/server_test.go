package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
	"github.com/KumarSohan18/comic-repo-public/pkg/workflow"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReady bool

func (r fakeReady) Ready() bool { return bool(r) }

type fakeGenerator struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	last  atomic.Value // domain.ComicRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req domain.ComicRequest) (*domain.ComicResult, error) {
	g.calls.Add(1)
	g.last.Store(req)
	time.Sleep(g.delay)
	if g.err != nil {
		return nil, g.err
	}
	return &domain.ComicResult{
		ID:       req.ID,
		ImageURL: "https://example.com/" + req.ID + ".png",
		PageURLs: []string{"https://example.com/" + req.ID + ".png"},
		Quiz:     []string{"q1", "q2", "q3"},
	}, nil
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const validBody = `{"user_theme":"photosynthesis","genre":"adventure","style":"anime","dont_include":"violence","uuid":"abc"}`

func TestHealth(t *testing.T) {
	tests := []struct {
		name  string
		ready bool
		want  string
	}{
		{"初期化済み", true, "initialized"},
		{"未初期化", false, "not initialized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(NewHandler(&fakeGenerator{}, fakeReady(tt.ready), 0))
			w := do(t, router, http.MethodGet, "/", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != "healthy" || resp.ModelStatus != tt.want {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestGenerateComic(t *testing.T) {
	gen := &fakeGenerator{}
	router := NewRouter(NewHandler(gen, fakeReady(true), time.Minute))

	w := do(t, router, http.MethodPost, "/generate-comic", validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp ComicResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Status || resp.UUID != "abc" || resp.ImageURL != "https://example.com/abc.png" || len(resp.MCQs) != 3 {
		t.Errorf("resp = %+v", resp)
	}

	req := gen.last.Load().(domain.ComicRequest)
	if req.Theme != "photosynthesis" || req.DontInclude != "violence" {
		t.Errorf("リクエストの変換が不正です: %+v", req)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS ヘッダがありません: %q", got)
	}

	// 同じ uuid はキャッシュから返す
	w = do(t, router, http.MethodPost, "/generate-comic", validBody)
	if w.Code != http.StatusOK || gen.calls.Load() != 1 {
		t.Errorf("キャッシュが使われていません: status=%d calls=%d", w.Code, gen.calls.Load())
	}
}

func TestGenerateComic_GeneratesUUID(t *testing.T) {
	gen := &fakeGenerator{}
	router := NewRouter(NewHandler(gen, fakeReady(true), 0))

	w := do(t, router, http.MethodPost, "/generate-comic", `{"user_theme":"t","genre":"g","style":"s"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ComicResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.UUID) != 36 {
		t.Errorf("uuid が生成されていません: %q", resp.UUID)
	}
}

func TestGenerateComic_OptionalGenreAndStyle(t *testing.T) {
	bodies := map[string]string{
		"省略":  `{"user_theme":"volcanoes","uuid":"opt-1"}`,
		"空文字": `{"user_theme":"volcanoes","genre":"","style":"","uuid":"opt-2"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			gen := &fakeGenerator{}
			router := NewRouter(NewHandler(gen, fakeReady(true), 0))

			w := do(t, router, http.MethodPost, "/generate-comic", body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			req := gen.last.Load().(domain.ComicRequest)
			if req.Theme != "volcanoes" || req.Genre != "" || req.Style != "" {
				t.Errorf("リクエストの変換が不正です: %+v", req)
			}
		})
	}
}

func TestGenerateComic_SameUUIDDifferentInput(t *testing.T) {
	gen := &fakeGenerator{}
	router := NewRouter(NewHandler(gen, fakeReady(true), time.Minute))

	do(t, router, http.MethodPost, "/generate-comic", validBody)
	w := do(t, router, http.MethodPost, "/generate-comic",
		`{"user_theme":"volcanoes","genre":"adventure","style":"anime","dont_include":"violence","uuid":"abc"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gen.calls.Load() != 2 {
		t.Errorf("テーマが変われば再生成されるべきです: calls=%d", gen.calls.Load())
	}
	if req := gen.last.Load().(domain.ComicRequest); req.Theme != "volcanoes" {
		t.Errorf("古い結果が使われています: %+v", req)
	}

	var resp ComicResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Status || resp.UUID != "abc" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGenerateComic_Errors(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		genErr error
		body   string
		want   int
	}{
		{"未初期化は 503", false, nil, validBody, http.StatusServiceUnavailable},
		{"必須項目なしは 400", true, nil, `{"genre":"g","style":"s"}`, http.StatusBadRequest},
		{"不正な uuid は 400", true, nil, `{"user_theme":"t","genre":"g","style":"s","uuid":"../x"}`, http.StatusBadRequest},
		{"抽出失敗は 500", true, domain.NewNoValidScenesError(), validBody, http.StatusInternalServerError},
		{"アップロード失敗は 500", true, errors.New("upload failed"), validBody, http.StatusInternalServerError},
		{"途中で解放されたら 503", true, &domain.PreconditionError{Err: workflow.ErrNotReady}, validBody, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(NewHandler(&fakeGenerator{err: tt.genErr}, fakeReady(tt.ready), 0))
			w := do(t, router, http.MethodPost, "/generate-comic", tt.body)
			if w.Code != tt.want {
				t.Errorf("status: 期待値 %d, 実際の値 %d (%s)", tt.want, w.Code, w.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Detail == "" {
				t.Errorf("detail がありません: %s", w.Body.String())
			}
		})
	}
}

func TestGenerateComic_FailureIsNotCached(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	router := NewRouter(NewHandler(gen, fakeReady(true), time.Minute))

	do(t, router, http.MethodPost, "/generate-comic", validBody)
	do(t, router, http.MethodPost, "/generate-comic", validBody)
	if gen.calls.Load() != 2 {
		t.Errorf("失敗はキャッシュされないはずです: calls=%d", gen.calls.Load())
	}
}

func TestGenerateComic_CollapsesConcurrentRequests(t *testing.T) {
	gen := &fakeGenerator{delay: 100 * time.Millisecond}
	router := NewRouter(NewHandler(gen, fakeReady(true), time.Minute))

	var wg sync.WaitGroup
	codes := make([]int, 5)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = do(t, router, http.MethodPost, "/generate-comic", validBody).Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: status = %d", i, code)
		}
	}
	if gen.calls.Load() != 1 {
		t.Errorf("同じ uuid の生成は1回にまとめられるべきです: calls=%d", gen.calls.Load())
	}
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(NewHandler(&fakeGenerator{}, fakeReady(true), 0))
	w := do(t, router, http.MethodOptions, "/generate-comic", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", http.NotFoundHandler(), time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーが停止しませんでした")
	}
}
