package domain

// ComicRequest はコミック生成の入力です。
type ComicRequest struct {
	Theme       string
	Genre       string
	Style       string
	DontInclude string
	ID          string
}

// ComicResult はコミック生成の成果物です。
type ComicResult struct {
	ID        string
	ImageURL  string
	PageURLs  []string
	Quiz      []string
	Tier      ParseTier
	Rendered  map[int]bool
	PagePaths []string
}

// RenderedCount は画像生成に成功したシーン数を返します。
func (r *ComicResult) RenderedCount() int {
	n := 0
	for _, ok := range r.Rendered {
		if ok {
			n++
		}
	}
	return n
}
