package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staticsite/internal/api"
)

// opsHandler は /-/ 以下の運用エンドポイントを実装する
type opsHandler struct {
	server *Server
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *opsHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
	})
}

// GetStatus はサーバー状態取得エンドポイントの実装
func (h *opsHandler) GetStatus(c *gin.Context) {
	s := h.server
	c.JSON(http.StatusOK, api.StatusResponse{
		Status: api.Running,
		Server: api.ServerInfo{
			Host: s.config.Server.Host,
			Port: s.boundPort(),
		},
		Root:             s.static.Root(),
		IndexFile:        s.config.Static.IndexFile,
		DirectoryListing: s.config.Static.DirectoryListing,
		MIMETypes:        s.types.Len(),
		StartedAt:        s.startedAt,
		Timestamp:        time.Now(),
	})
}

// GetMetrics はPrometheus形式のメトリクスを返す
func (h *opsHandler) GetMetrics(c *gin.Context) {
	promhttp.HandlerFor(h.server.registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

// GetOpenAPI は運用APIのOpenAPI定義を返す
func (h *opsHandler) GetOpenAPI(c *gin.Context) {
	c.JSON(http.StatusOK, h.server.openapi)
}
