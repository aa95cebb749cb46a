package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultTextBackend     = "openai"
	DefaultTextBaseURL     = "http://localhost:8000"
	DefaultTextModel       = "mistralai/Mistral-7B-Instruct-v0.2"
	DefaultGeminiModel     = "gemini-3-flash-preview"
	DefaultImageBackend    = "sdapi"
	DefaultImageBaseURL    = "http://localhost:7860"
	DefaultImageModel      = "gemini-3-pro-image-preview"
	DefaultOutputDirBase   = "output"
	DefaultStorageBackend  = "s3"
	DefaultStorageBucket   = "comicimages3upload"
	DefaultAWSRegion       = "us-east-1"
	DefaultConcurrency     = 4
	DefaultSceneLimit      = 4
	DefaultTaskTimeout     = 5 * time.Minute
	DefaultSeedStrategy    = "fixed"
	DefaultSeed            = 42
	DefaultPersistMode     = "first"
	DefaultGridRows        = 5
	DefaultGridCols        = 2
	DefaultCellSize        = 768
	DefaultPadding         = 10
	DefaultFontSize        = 20.0
	DefaultCaptionField    = "narration"
	DefaultHTTPAddr        = ":5000"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultResultCacheTTL  = 10 * time.Minute
	DefaultShutdownTimeout = 10 * time.Second
)

// Config は環境変数（と任意の TOML ファイル）から読み込んだアプリケーション全体の設定なのだ。
type Config struct {
	TextBackend  string
	TextBaseURL  string
	TextModel    string
	TextAPIKey   string
	GeminiAPIKey string
	GeminiModel  string

	ImageBackend     string
	ImageBaseURL     string
	ImageGeminiModel string

	OutputDirBase string

	StorageBackend       string
	StorageBucket        string
	AWSRegion            string
	StorageLocalDir      string
	StoragePublicBaseURL string

	RenderConcurrency  int
	RenderSceneLimit   int
	RenderTaskTimeout  time.Duration
	RenderRateInterval time.Duration
	SeedStrategy       string
	Seed               int64

	PagePersistMode string
	PageGridRows    int
	PageGridCols    int
	PageCellSize    int
	PagePadding     int

	OverlayFontSize     float64
	OverlayFontPath     string
	OverlayCaptionField string

	HTTPAddr       string
	HTTPTimeout    time.Duration
	ResultCacheTTL time.Duration

	Options GenerateOptions
}

// Default は既定値で埋めた Config を返すのだ。
func Default() Config {
	return Config{
		TextBackend:         DefaultTextBackend,
		TextBaseURL:         DefaultTextBaseURL,
		TextModel:           DefaultTextModel,
		GeminiModel:         DefaultGeminiModel,
		ImageBackend:        DefaultImageBackend,
		ImageBaseURL:        DefaultImageBaseURL,
		ImageGeminiModel:    DefaultImageModel,
		OutputDirBase:       DefaultOutputDirBase,
		StorageBackend:      DefaultStorageBackend,
		StorageBucket:       DefaultStorageBucket,
		AWSRegion:           DefaultAWSRegion,
		RenderConcurrency:   DefaultConcurrency,
		RenderSceneLimit:    DefaultSceneLimit,
		RenderTaskTimeout:   DefaultTaskTimeout,
		SeedStrategy:        DefaultSeedStrategy,
		Seed:                DefaultSeed,
		PagePersistMode:     DefaultPersistMode,
		PageGridRows:        DefaultGridRows,
		PageGridCols:        DefaultGridCols,
		PageCellSize:        DefaultCellSize,
		PagePadding:         DefaultPadding,
		OverlayFontSize:     DefaultFontSize,
		OverlayCaptionField: DefaultCaptionField,
		HTTPAddr:            DefaultHTTPAddr,
		HTTPTimeout:         DefaultHTTPTimeout,
		ResultCacheTTL:      DefaultResultCacheTTL,
	}
}

// LoadConfig は設定を読み込むのだ！
// 優先順位は 環境変数 > COMIC_CONFIG_FILE の TOML > 既定値 なのだ。
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := envutil.GetEnv("COMIC_CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.TextBackend = envutil.GetEnv("TEXT_BACKEND", cfg.TextBackend)
	cfg.TextBaseURL = envutil.GetEnv("TEXT_BASE_URL", cfg.TextBaseURL)
	cfg.TextModel = envutil.GetEnv("TEXT_MODEL", cfg.TextModel)
	cfg.TextAPIKey = envutil.GetEnv("TEXT_API_KEY", "")
	cfg.GeminiAPIKey = envutil.GetEnv("GEMINI_API_KEY", "")
	cfg.GeminiModel = envutil.GetEnv("GEMINI_MODEL", cfg.GeminiModel)

	cfg.ImageBackend = envutil.GetEnv("IMAGE_BACKEND", cfg.ImageBackend)
	cfg.ImageBaseURL = envutil.GetEnv("IMAGE_BASE_URL", cfg.ImageBaseURL)
	cfg.ImageGeminiModel = envutil.GetEnv("IMAGE_GEMINI_MODEL", cfg.ImageGeminiModel)

	cfg.OutputDirBase = envutil.GetEnv("OUTPUT_DIR_BASE", cfg.OutputDirBase)

	cfg.StorageBackend = envutil.GetEnv("STORAGE_BACKEND", cfg.StorageBackend)
	cfg.StorageBucket = envutil.GetEnv("STORAGE_BUCKET", cfg.StorageBucket)
	cfg.AWSRegion = envutil.GetEnv("AWS_REGION", cfg.AWSRegion)
	cfg.StorageLocalDir = envutil.GetEnv("STORAGE_LOCAL_DIR", cfg.StorageLocalDir)
	cfg.StoragePublicBaseURL = envutil.GetEnv("STORAGE_PUBLIC_BASE_URL", cfg.StoragePublicBaseURL)

	cfg.RenderConcurrency = envutil.GetEnvAsInt("RENDER_CONCURRENCY", cfg.RenderConcurrency)
	cfg.RenderSceneLimit = envutil.GetEnvAsInt("RENDER_SCENE_LIMIT", cfg.RenderSceneLimit)
	cfg.RenderTaskTimeout = getEnvDuration("RENDER_TASK_TIMEOUT", cfg.RenderTaskTimeout)
	cfg.RenderRateInterval = getEnvDuration("RENDER_RATE_INTERVAL", cfg.RenderRateInterval)
	cfg.SeedStrategy = envutil.GetEnv("SEED_STRATEGY", cfg.SeedStrategy)
	cfg.Seed = int64(envutil.GetEnvAsInt("SEED", int(cfg.Seed)))

	cfg.PagePersistMode = envutil.GetEnv("PAGE_PERSIST_MODE", cfg.PagePersistMode)
	cfg.PageGridRows = envutil.GetEnvAsInt("PAGE_GRID_ROWS", cfg.PageGridRows)
	cfg.PageGridCols = envutil.GetEnvAsInt("PAGE_GRID_COLS", cfg.PageGridCols)
	cfg.PageCellSize = envutil.GetEnvAsInt("PAGE_CELL_SIZE", cfg.PageCellSize)
	cfg.PagePadding = envutil.GetEnvAsInt("PAGE_PADDING", cfg.PagePadding)

	cfg.OverlayFontSize = getEnvFloat("OVERLAY_FONT_SIZE", cfg.OverlayFontSize)
	cfg.OverlayFontPath = envutil.GetEnv("OVERLAY_FONT_PATH", cfg.OverlayFontPath)
	cfg.OverlayCaptionField = envutil.GetEnv("OVERLAY_CAPTION_FIELD", cfg.OverlayCaptionField)

	cfg.HTTPAddr = envutil.GetEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.ResultCacheTTL = getEnvDuration("RESULT_CACHE_TTL", cfg.ResultCacheTTL)

	return &cfg, nil
}

// fileConfig は COMIC_CONFIG_FILE の TOML 表現なのだ。省略したキーは既定値のまま残るのだ。
// 期間は "5m" のような文字列で書くのだ。
type fileConfig struct {
	TextBackend          *string  `toml:"text_backend"`
	TextBaseURL          *string  `toml:"text_base_url"`
	TextModel            *string  `toml:"text_model"`
	GeminiModel          *string  `toml:"gemini_model"`
	ImageBackend         *string  `toml:"image_backend"`
	ImageBaseURL         *string  `toml:"image_base_url"`
	ImageGeminiModel     *string  `toml:"image_gemini_model"`
	OutputDirBase        *string  `toml:"output_dir_base"`
	StorageBackend       *string  `toml:"storage_backend"`
	StorageBucket        *string  `toml:"storage_bucket"`
	AWSRegion            *string  `toml:"aws_region"`
	StorageLocalDir      *string  `toml:"storage_local_dir"`
	StoragePublicBaseURL *string  `toml:"storage_public_base_url"`
	RenderConcurrency    *int     `toml:"render_concurrency"`
	RenderSceneLimit     *int     `toml:"render_scene_limit"`
	RenderTaskTimeout    *string  `toml:"render_task_timeout"`
	RenderRateInterval   *string  `toml:"render_rate_interval"`
	SeedStrategy         *string  `toml:"seed_strategy"`
	Seed                 *int64   `toml:"seed"`
	PagePersistMode      *string  `toml:"page_persist_mode"`
	PageGridRows         *int     `toml:"page_grid_rows"`
	PageGridCols         *int     `toml:"page_grid_cols"`
	PageCellSize         *int     `toml:"page_cell_size"`
	PagePadding          *int     `toml:"page_padding"`
	OverlayFontSize      *float64 `toml:"overlay_font_size"`
	OverlayFontPath      *string  `toml:"overlay_font_path"`
	OverlayCaptionField  *string  `toml:"overlay_caption_field"`
	HTTPAddr             *string  `toml:"http_addr"`
	HTTPTimeout          *string  `toml:"http_timeout"`
	ResultCacheTTL       *string  `toml:"result_cache_ttl"`
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("設定ファイル '%s' を開けませんでした: %w", path, err)
	}
	defer f.Close()

	var fc fileConfig
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("設定ファイル '%s' の解析に失敗しました: %w", path, err)
	}

	set(&cfg.TextBackend, fc.TextBackend)
	set(&cfg.TextBaseURL, fc.TextBaseURL)
	set(&cfg.TextModel, fc.TextModel)
	set(&cfg.GeminiModel, fc.GeminiModel)
	set(&cfg.ImageBackend, fc.ImageBackend)
	set(&cfg.ImageBaseURL, fc.ImageBaseURL)
	set(&cfg.ImageGeminiModel, fc.ImageGeminiModel)
	set(&cfg.OutputDirBase, fc.OutputDirBase)
	set(&cfg.StorageBackend, fc.StorageBackend)
	set(&cfg.StorageBucket, fc.StorageBucket)
	set(&cfg.AWSRegion, fc.AWSRegion)
	set(&cfg.StorageLocalDir, fc.StorageLocalDir)
	set(&cfg.StoragePublicBaseURL, fc.StoragePublicBaseURL)
	set(&cfg.RenderConcurrency, fc.RenderConcurrency)
	set(&cfg.RenderSceneLimit, fc.RenderSceneLimit)
	set(&cfg.SeedStrategy, fc.SeedStrategy)
	set(&cfg.Seed, fc.Seed)
	set(&cfg.PagePersistMode, fc.PagePersistMode)
	set(&cfg.PageGridRows, fc.PageGridRows)
	set(&cfg.PageGridCols, fc.PageGridCols)
	set(&cfg.PageCellSize, fc.PageCellSize)
	set(&cfg.PagePadding, fc.PagePadding)
	set(&cfg.OverlayFontSize, fc.OverlayFontSize)
	set(&cfg.OverlayFontPath, fc.OverlayFontPath)
	set(&cfg.OverlayCaptionField, fc.OverlayCaptionField)
	set(&cfg.HTTPAddr, fc.HTTPAddr)

	durations := []struct {
		raw *string
		dst *time.Duration
	}{
		{fc.RenderTaskTimeout, &cfg.RenderTaskTimeout},
		{fc.RenderRateInterval, &cfg.RenderRateInterval},
		{fc.HTTPTimeout, &cfg.HTTPTimeout},
		{fc.ResultCacheTTL, &cfg.ResultCacheTTL},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("設定ファイル '%s' の期間指定が不正です (%q): %w", path, *d.raw, err)
		}
		*d.dst = v
	}

	slog.Debug("Loaded config file", "path", path)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// envutil は整数と真偽値までしか扱わないため、小数と期間はここで解釈するのだ
func getEnvFloat(key string, def float64) float64 {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("Invalid number in environment, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		// "0" のような単位なしの整数は秒として扱うのだ
		if secs, convErr := strconv.Atoi(raw); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	Theme       string // --theme
	Genre       string // --genre
	Style       string // --style
	DontInclude string // --dont-include
	ID          string // --id
	JSON        bool   // --json: 結果を常に JSON で出力するのだ
}
