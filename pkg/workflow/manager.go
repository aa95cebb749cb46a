package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KumarSohan18/comic-repo-public/pkg/adapters"
	"github.com/KumarSohan18/comic-repo-public/pkg/domain"
)

// TextFactory はテキスト生成ポートを構築します。
type TextFactory func(ctx context.Context) (domain.TextGenerator, error)

// ImageFactory は画像生成ポートを構築します。
type ImageFactory func(ctx context.Context) (domain.ImageGenerator, error)

// ManagerArgs は Manager の初期化に必要な構築関数です。
type ManagerArgs struct {
	Text  TextFactory
	Image ImageFactory
}

// ErrNotReady はモデルハンドルが未初期化、または解放済みであることを示します。
var ErrNotReady = errors.New("モデルが初期化されていません")

// Manager はプロセス全体で共有するモデルハンドルの寿命を管理します。
// Init が成功するまで Ready は false で、Close 後は再び false になります。
// 保持するハンドルは排他ゲートで包まれており、同時に呼び出されても直列化されます。
type Manager struct {
	args ManagerArgs

	mu    sync.RWMutex
	text  *adapters.GatedText
	image *adapters.GatedImage
	ready atomic.Bool
}

// NewManager は Manager を生成します。ハンドルは Init まで構築されません。
func NewManager(args ManagerArgs) (*Manager, error) {
	if args.Text == nil {
		return nil, fmt.Errorf("TextFactory は必須です")
	}
	if args.Image == nil {
		return nil, fmt.Errorf("ImageFactory は必須です")
	}
	return &Manager{args: args}, nil
}

// Init はテキストと画像のハンドルを構築します。すでに初期化済みの場合はエラーです。
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready.Load() {
		return fmt.Errorf("モデルはすでに初期化されています")
	}

	start := time.Now()
	text, err := m.args.Text(ctx)
	if err != nil {
		return fmt.Errorf("テキスト生成モデルの初期化に失敗しました: %w", err)
	}
	image, err := m.args.Image(ctx)
	if err != nil {
		closeIfCloser(text)
		return fmt.Errorf("画像生成モデルの初期化に失敗しました: %w", err)
	}

	m.text = adapters.NewGatedText(text)
	m.image = adapters.NewGatedImage(image)
	m.ready.Store(true)

	if err := m.image.CheckAvailable(ctx); err != nil {
		slog.WarnContext(ctx, "Image model reports no accelerator", "error", err)
	}
	slog.InfoContext(ctx, "Models initialized", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Ready はハンドルが利用可能かどうかを返します。
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// Text はゲート付きのテキスト生成ポートを返します。
func (m *Manager) Text() (domain.TextGenerator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready.Load() {
		return nil, ErrNotReady
	}
	return m.text, nil
}

// Image はゲート付きの画像生成ポートを返します。
func (m *Manager) Image() (domain.ImageGenerator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready.Load() {
		return nil, ErrNotReady
	}
	return m.image, nil
}

// Close はハンドルを解放します。io.Closer を実装するハンドルは Close されます。
// 未初期化の場合は何もしません。
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready.Swap(false) {
		return nil
	}

	var errs []error
	if m.text != nil {
		errs = append(errs, closeIfCloser(m.text.Unwrap()))
	}
	if m.image != nil {
		errs = append(errs, closeIfCloser(m.image.Unwrap()))
	}
	m.text, m.image = nil, nil

	slog.Info("Models released")
	return errors.Join(errs...)
}

func closeIfCloser(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
