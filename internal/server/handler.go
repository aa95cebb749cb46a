package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/asset"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
	"github.com/KumarSohan18/comic-repo-public/pkg/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL      = 10 * time.Minute
	cacheCleanupInterval = 15 * time.Minute
)

// Generator は1リクエスト分のコミックを生成します。
type Generator interface {
	Generate(ctx context.Context, req domain.ComicRequest) (*domain.ComicResult, error)
}

// ReadinessChecker はモデルハンドルが利用可能かを返します。
type ReadinessChecker interface {
	Ready() bool
}

// ComicRequest は POST /generate-comic のリクエストボディです。
type ComicRequest struct {
	UserTheme   string `json:"user_theme" binding:"required"`
	Genre       string `json:"genre"`
	Style       string `json:"style"`
	DontInclude string `json:"dont_include"`
	UUID        string `json:"uuid"`
}

// ComicResponse は POST /generate-comic のレスポンスボディです。
type ComicResponse struct {
	Status   bool     `json:"status"`
	Message  string   `json:"message"`
	UUID     string   `json:"uuid"`
	ImageURL string   `json:"image_url"`
	PageURLs []string `json:"page_urls,omitempty"`
	MCQs     []string `json:"mcqs"`
}

// HealthResponse は GET / のレスポンスボディです。
type HealthResponse struct {
	Status      string `json:"status"`
	ModelStatus string `json:"model_status"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Handler はコミック生成 API のハンドラです。
// uuid と入力内容が同じ同時リクエストは1回の生成にまとめられ、結果は TTL の間キャッシュされます。
type Handler struct {
	gen     Generator
	ready   ReadinessChecker
	results *cache.Cache
	flight  singleflight.Group
}

// NewHandler は Handler を生成します。ttl が 0 以下の場合は既定値を使います。
func NewHandler(gen Generator, ready ReadinessChecker, ttl time.Duration) *Handler {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Handler{
		gen:     gen,
		ready:   ready,
		results: cache.New(ttl, cacheCleanupInterval),
	}
}

// RegisterRoutes はルートを登録します。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.health)
	r.POST("/generate-comic", h.generateComic)
}

func (h *Handler) health(c *gin.Context) {
	status := "not initialized"
	if h.ready.Ready() {
		status = "initialized"
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", ModelStatus: status})
}

func (h *Handler) generateComic(c *gin.Context) {
	if !h.ready.Ready() {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Detail: "Models not initialized"})
		return
	}

	var req ComicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	id := req.UUID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := asset.NewLayout("", id); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	key := requestKey(id, req)
	logger := slog.With("id", id)
	if cached, ok := h.results.Get(key); ok {
		logger.InfoContext(c.Request.Context(), "Returning cached comic")
		c.JSON(http.StatusOK, cached)
		return
	}

	comicReq := domain.ComicRequest{
		Theme:       req.UserTheme,
		Genre:       req.Genre,
		Style:       req.Style,
		DontInclude: req.DontInclude,
		ID:          id,
	}

	// 呼び出し元が切断しても、同じキーで待っている他のリクエストのために生成は続ける
	ctx := context.WithoutCancel(c.Request.Context())
	v, err, shared := h.flight.Do(key, func() (any, error) {
		result, err := h.gen.Generate(ctx, comicReq)
		if err != nil {
			return nil, err
		}
		resp := ComicResponse{
			Status:   true,
			Message:  "Comic generated successfully",
			UUID:     id,
			ImageURL: result.ImageURL,
			PageURLs: result.PageURLs,
			MCQs:     result.Quiz,
		}
		h.results.SetDefault(key, resp)
		return resp, nil
	})
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	if shared {
		logger.Debug("Shared in-flight generation")
	}
	c.JSON(http.StatusOK, v)
}

// requestKey は uuid と入力内容のハッシュを組み合わせたキャッシュキーを返します。
// 同じ uuid でもテーマなどが変われば別の生成として扱います。
func requestKey(id string, req ComicRequest) string {
	sum := sha256.New()
	for _, f := range []string{req.UserTheme, req.Genre, req.Style, req.DontInclude} {
		sum.Write([]byte(f))
		sum.Write([]byte{0})
	}
	return id + ":" + hex.EncodeToString(sum.Sum(nil)[:12])
}

func (h *Handler) writeError(c *gin.Context, logger *slog.Logger, err error) {
	if errors.Is(err, workflow.ErrNotReady) {
		logger.WarnContext(c.Request.Context(), "Models were released during the request", "error", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{Detail: "Models not initialized"})
		return
	}
	logger.ErrorContext(c.Request.Context(), "Comic generation failed", "error", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Detail: err.Error()})
}
