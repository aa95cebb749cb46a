package compositor

import (
	"fmt"
	"image"
)

const (
	DefaultRows     = 5
	DefaultCols     = 2
	DefaultCellSize = 768
	DefaultPadding  = 10
)

// Grid はページのセル配置を表します。余白はセル間と外周の両方に入ります。
type Grid struct {
	Rows       int
	Cols       int
	CellWidth  int
	CellHeight int
	Padding    int
}

// DefaultGrid は既定のグリッド（768x768 のセルを 5行 x 2列、余白 10）を返します。
func DefaultGrid() Grid {
	return Grid{
		Rows:       DefaultRows,
		Cols:       DefaultCols,
		CellWidth:  DefaultCellSize,
		CellHeight: DefaultCellSize,
		Padding:    DefaultPadding,
	}
}

// Validate はグリッドの各値が正しい範囲にあるかを確認します。
func (g Grid) Validate() error {
	if g.Rows < 1 || g.Cols < 1 {
		return fmt.Errorf("グリッドの行数と列数は1以上である必要があります (rows=%d, cols=%d)", g.Rows, g.Cols)
	}
	if g.CellWidth < 1 || g.CellHeight < 1 {
		return fmt.Errorf("セルサイズは1以上である必要があります (%dx%d)", g.CellWidth, g.CellHeight)
	}
	if g.Padding < 0 {
		return fmt.Errorf("余白は0以上である必要があります (padding=%d)", g.Padding)
	}
	return nil
}

// PerPage は1ページに配置できる画像数です。
func (g Grid) PerPage() int {
	return g.Rows * g.Cols
}

// CanvasSize はページ全体のサイズです。
//
//	width  = cols*cellWidth  + (cols+1)*padding
//	height = rows*cellHeight + (rows+1)*padding
func (g Grid) CanvasSize() image.Point {
	return image.Pt(
		g.Cols*g.CellWidth+(g.Cols+1)*g.Padding,
		g.Rows*g.CellHeight+(g.Rows+1)*g.Padding,
	)
}

// CellOrigin はページ内の index 番目（0始まり、行優先）のセルの左上座標です。
func (g Grid) CellOrigin(index int) image.Point {
	index %= g.PerPage()
	row := index / g.Cols
	col := index % g.Cols
	return image.Pt(
		g.Padding+col*(g.CellWidth+g.Padding),
		g.Padding+row*(g.CellHeight+g.Padding),
	)
}
