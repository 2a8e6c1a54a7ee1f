package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"staticsite/internal/cli"
	"staticsite/internal/config"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	// 設定を読み込む (環境変数のみ。フラグや設定ファイルは cmd/ を使う)
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	os.Exit(cli.Run(context.Background(), cfg, os.Stdout, os.Stderr))
}
