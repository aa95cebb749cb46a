package overlay

import "strings"

// MeasureFunc は文字列の描画幅をピクセル単位で返します。
type MeasureFunc func(s string) int

// Wrap は単語を貪欲に詰めて行に分割します。
// 単語の途中では決して分割しません。1単語だけで maxWidth を超える場合はその単語を単独の行にします。
// 2単語以上を含む行の幅は常に maxWidth 以下です。
func Wrap(text string, maxWidth int, measure MeasureFunc) []string {
	var lines []string
	var current []string

	for _, word := range strings.Fields(text) {
		if len(current) == 0 {
			if measure(word) > maxWidth {
				lines = append(lines, word)
				continue
			}
			current = []string{word}
			continue
		}

		candidate := strings.Join(current, " ") + " " + word
		if measure(candidate) <= maxWidth {
			current = append(current, word)
			continue
		}

		lines = append(lines, strings.Join(current, " "))
		current = nil
		if measure(word) > maxWidth {
			lines = append(lines, word)
			continue
		}
		current = []string{word}
	}

	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}
