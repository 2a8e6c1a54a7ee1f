// Package main は静的サイト配信サーバーコマンドの実装です
package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"

	"staticsite/internal/cli"
)

func main() {
	gin.SetMode(gin.ReleaseMode)
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
