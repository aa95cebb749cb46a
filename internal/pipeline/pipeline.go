package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KumarSohan18/comic-repo-public/internal/builder"
	"github.com/KumarSohan18/comic-repo-public/internal/config"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"

	"github.com/google/uuid"
)

// Execute は CLI から1回分のコミック生成を行うのだ。
// モデルの初期化から解放までをこの関数の中で完結させるのだよ。
func Execute(ctx context.Context, cfg *config.Config) (result *domain.ComicResult, err error) {
	app, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("リソースの解放に失敗したのだ: %w", cerr))
		}
	}()

	slog.Info("Initializing models", "text_backend", cfg.TextBackend, "image_backend", cfg.ImageBackend)
	if err := app.Manager.Init(ctx); err != nil {
		return nil, err
	}

	opts := cfg.Options
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	req := domain.ComicRequest{
		Theme:       opts.Theme,
		Genre:       opts.Genre,
		Style:       opts.Style,
		DontInclude: opts.DontInclude,
		ID:          opts.ID,
	}
	return app.Pipeline.Generate(ctx, req)
}
