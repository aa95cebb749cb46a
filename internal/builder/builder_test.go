package builder

import (
	"context"
	"testing"
	"time"

	"github.com/KumarSohan18/comic-repo-public/internal/config"
	"github.com/KumarSohan18/comic-repo-public/pkg/generator"
	"github.com/KumarSohan18/comic-repo-public/pkg/publisher"
)

func TestBuildPipelineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.SeedStrategy = "scene"
	cfg.Seed = 100
	cfg.RenderSceneLimit = 7
	cfg.RenderTaskTimeout = time.Minute
	cfg.PageCellSize = 300
	cfg.PagePersistMode = "all"

	opts, err := BuildPipelineOptions(&cfg)
	if err != nil {
		t.Fatalf("BuildPipelineOptions: %v", err)
	}
	if opts.Render.SceneLimit != 7 || opts.Render.TaskTimeout != time.Minute {
		t.Errorf("render = %+v", opts.Render)
	}
	if got := opts.Render.Seed.Seed(3); got != 103 || opts.Render.Seed.Name() != generator.SeedStrategyScene {
		t.Errorf("seed(3) = %d (%s)", got, opts.Render.Seed.Name())
	}
	if opts.Grid.CellWidth != 300 || opts.Grid.CellHeight != 300 || opts.Grid.Rows != config.DefaultGridRows {
		t.Errorf("grid = %+v", opts.Grid)
	}
	if opts.PersistMode != "all" {
		t.Errorf("persist = %q", opts.PersistMode)
	}
}

func TestBuildPipelineOptions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"不明なシード戦略", func(c *config.Config) { c.SeedStrategy = "random" }},
		{"不正なグリッド", func(c *config.Config) { c.PageGridRows = 0 }},
		{"不明な保存モード", func(c *config.Config) { c.PagePersistMode = "some" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(&cfg)
			if _, err := BuildPipelineOptions(&cfg); err == nil {
				t.Error("エラーを期待しました")
			}
		})
	}
}

func TestBuildFactories_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.TextBackend = "llama.cpp"
	cfg.ImageBackend = "dalle"
	if _, err := BuildTextFactory(&cfg); err == nil {
		t.Error("未知のテキストバックエンドはエラーになるべきです")
	}
	if _, err := BuildImageFactory(&cfg); err == nil {
		t.Error("未知の画像バックエンドはエラーになるべきです")
	}
}

func TestBuildUploader_Local(t *testing.T) {
	cfg := config.Default()
	cfg.StorageBackend = "local"
	cfg.StorageLocalDir = t.TempDir()

	u, err := BuildUploader(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("BuildUploader: %v", err)
	}
	if _, ok := u.(*publisher.LocalUploader); !ok {
		t.Errorf("LocalUploader を期待しました: %T", u)
	}

	cfg.StorageBackend = "ftp"
	if _, err := BuildUploader(context.Background(), &cfg); err == nil {
		t.Error("未知のストレージはエラーになるべきです")
	}
}

func TestNewAppContext_Local(t *testing.T) {
	cfg := config.Default()
	cfg.StorageBackend = "local"
	cfg.StorageLocalDir = t.TempDir()
	cfg.OutputDirBase = t.TempDir()

	app, err := NewAppContext(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("NewAppContext: %v", err)
	}
	defer app.Close()

	if app.Manager.Ready() {
		t.Error("Init 前に Ready であってはいけません")
	}
	if app.Pipeline == nil {
		t.Error("Pipeline が構築されていません")
	}
}
