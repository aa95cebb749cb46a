package generator

import (
	"fmt"
	"strings"
)

const (
	SeedStrategyFixed = "fixed"
	SeedStrategyScene = "scene"

	// DefaultSeed は全シーン共通で使う既定のシード値です。
	DefaultSeed int64 = 42
)

// SeedStrategy はシーン番号から画像生成のシード値を決めます。
type SeedStrategy interface {
	Seed(sceneNumber int) int64
	Name() string
}

// FixedSeed は全シーンに同じシード値を使います。同じプロンプトなら同じ画像が再現されます。
type FixedSeed int64

func (s FixedSeed) Seed(int) int64 { return int64(s) }
func (s FixedSeed) Name() string   { return SeedStrategyFixed }

// SceneSeed はベース値にシーン番号を加えたシード値を使います。
type SceneSeed int64

func (s SceneSeed) Seed(sceneNumber int) int64 { return int64(s) + int64(sceneNumber) }
func (s SceneSeed) Name() string               { return SeedStrategyScene }

// ParseSeedStrategy は名前から SeedStrategy を生成します。空文字は fixed とみなします。
func ParseSeedStrategy(name string, base int64) (SeedStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SeedStrategyFixed:
		return FixedSeed(base), nil
	case SeedStrategyScene:
		return SceneSeed(base), nil
	default:
		return nil, fmt.Errorf("サポートされていないシード戦略: '%s'。サポートされている戦略は [%s, %s] です", name, SeedStrategyFixed, SeedStrategyScene)
	}
}
