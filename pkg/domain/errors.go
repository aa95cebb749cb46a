package domain

import "fmt"

// ExtractionError は生成テキストから有効なシーンを1件も復元できなかったことを示します。
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "scene extraction failed: " + e.Reason
}

// NewNoValidScenesError は "no valid scenes" の ExtractionError を返します。
func NewNoValidScenesError() error {
	return &ExtractionError{Reason: "no valid scenes"}
}

// RenderError は1シーン分の画像生成失敗を表します。バッチ全体は中断しません。
type RenderError struct {
	Scene int
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("scene %d render failed: %v", e.Scene, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PreconditionError は処理開始前の前提条件（GPU の有無など）を満たさないことを示します。
type PreconditionError struct {
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %v", e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// UpstreamError はテキスト生成や画像生成など外部ポートの失敗を表します。
type UpstreamError struct {
	Port string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s port failed: %v", e.Port, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IOError はオーバーレイや合成時の入力画像の読み込み失敗を表します。
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error on %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
