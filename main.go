package main

import (
	"github.com/KumarSohan18/comic-repo-public/cmd"
)

// main はアプリケーションの唯一のエントリーポイントなのだ！
// serve と generate の解析と実行は cmd パッケージに委ねるのだよ。
func main() {
	cmd.Execute()
}
