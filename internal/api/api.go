// Package api は運用エンドポイントのレスポンス型と、それを記述する OpenAPI 定義を提供する
package api

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var documentYAML []byte

// HealthResponseStatus は /-/healthy の status 値
type HealthResponseStatus string

// StatusResponseStatus は /-/status の status 値
type StatusResponseStatus string

const (
	Healthy HealthResponseStatus = "healthy"
	Running StatusResponseStatus = "running"
)

// HealthResponse は /-/healthy のレスポンス
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// ServerInfo はリッスン中のホストとポート
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusResponse は /-/status のレスポンス
type StatusResponse struct {
	Status           StatusResponseStatus `json:"status"`
	Server           ServerInfo           `json:"server"`
	Root             string               `json:"root"`
	IndexFile        string               `json:"index_file"`
	DirectoryListing bool                 `json:"directory_listing"`
	MIMETypes        int                  `json:"mime_types"`
	StartedAt        time.Time            `json:"started_at"`
	Timestamp        time.Time            `json:"timestamp"`
}

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Load は埋め込みの OpenAPI 定義を読み込み、検証する
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(documentYAML)
	if err != nil {
		return nil, fmt.Errorf("OpenAPI定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("OpenAPI定義の検証に失敗: %w", err)
	}
	return doc, nil
}
