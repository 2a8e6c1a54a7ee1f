package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"staticsite/internal/api"
	"staticsite/internal/config"
	"staticsite/internal/static"
)

// ErrAlreadyStarted は Start が二度呼ばれた場合に返すエラー
var ErrAlreadyStarted = errors.New("サーバーは既に起動しています")

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	log        *logrus.Logger
	console    io.Writer
	signals    []os.Signal
	engine     *gin.Engine
	static     *static.Handler
	types      static.MIMETable
	openapi    *openapi3.T
	registry   *prometheus.Registry
	metrics    *metrics
	httpServer *http.Server

	started   atomic.Bool
	startedAt time.Time
	addr      string
	ready     chan struct{}
}

// Option は Server の生成時オプション
type Option func(*Server)

// WithLogger はログ出力先のロガーを指定する
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) { s.log = logger }
}

// WithConsole は起動・停止メッセージの出力先を指定する (デフォルトは標準出力)
func WithConsole(w io.Writer) Option {
	return func(s *Server) { s.console = w }
}

// WithSignals はシャットダウンを開始するシグナルを指定する
func WithSignals(sigs ...os.Signal) Option {
	return func(s *Server) { s.signals = sigs }
}

// New は新しいServerインスタンスを作成する
// 配信ディレクトリが存在しない場合はリスナーを作らずにエラーを返す
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		config:  cfg,
		log:     logrus.StandardLogger(),
		console: os.Stdout,
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// 拡張子テーブルは生成時に確定し、以後変更しない
	s.types = static.DefaultMIMETable().WithOverrides(cfg.Static.MIMETypes)

	handler, err := static.New(static.Options{
		Root:             cfg.Static.Root,
		IndexFile:        cfg.Static.IndexFile,
		DirectoryListing: cfg.Static.DirectoryListing,
		Sniff:            cfg.Static.Sniff,
		Types:            s.types,
		Logger:           s.log,
	})
	if err != nil {
		return nil, err
	}
	s.static = handler

	if cfg.Server.OpsEnabled {
		doc, err := api.Load(context.Background())
		if err != nil {
			return nil, err
		}
		s.openapi = doc
	}

	s.registry = prometheus.NewRegistry()
	s.metrics = newMetrics(s.registry)

	s.engine = s.newEngine()
	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// newEngine はGinエンジンを作成しルートを設定する
func (s *Server) newEngine() *gin.Engine {
	engine := gin.New()
	// 運用エンドポイントに GET/HEAD 以外が来た場合は 405 を返す
	engine.HandleMethodNotAllowed = true
	serveStatic := gin.WrapH(s.static)

	engine.Use(
		requestID(),
		accessLog(s.log),
		s.metrics.middleware(),
		gin.CustomRecoveryWithWriter(io.Discard, s.recovered),
	)

	if s.config.Server.OpsEnabled {
		h := &opsHandler{server: s}
		ops := engine.Group("/-")
		for path, handle := range map[string]gin.HandlerFunc{
			"/healthy":      h.HealthCheck,
			"/status":       h.GetStatus,
			"/metrics":      h.GetMetrics,
			"/openapi.json": h.GetOpenAPI,
		} {
			handle = s.preferStatic(handle, serveStatic)
			ops.GET(path, handle)
			ops.HEAD(path, handle)
		}
	}

	// それ以外のパスはすべて静的ファイルとして扱う
	engine.NoRoute(serveStatic)
	return engine
}

// preferStatic は配信ディレクトリに同じパスがあればそちらを返すハンドラーを作る
func (s *Server) preferStatic(handle, serveStatic gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.static.Has(c.Request.URL.Path) {
			serveStatic(c)
			return
		}
		handle(c)
	}
}

func (s *Server) recovered(c *gin.Context, err any) {
	s.log.WithFields(logrus.Fields{
		"path":       c.Request.URL.Path,
		"request_id": c.GetString(requestIDKey),
		"panic":      err,
	}).Error("リクエスト処理中にパニックが発生しました")
	c.AbortWithStatus(http.StatusInternalServerError)
}

// Handler はルーティング済みの http.Handler を返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Ready はリスナーのバインド後にクローズされるチャンネルを返す
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr はバインドしたアドレスを返す (Ready の後のみ有効)
func (s *Server) Addr() string {
	<-s.ready
	return s.addr
}

func (s *Server) boundPort() int {
	select {
	case <-s.ready:
		if _, sport, err := net.SplitHostPort(s.addr); err == nil {
			if port, err := strconv.Atoi(sport); err == nil {
				return port
			}
		}
	default:
	}
	return s.config.Server.Port
}

// Start はサーバーを起動する
// ctx のキャンセル、シグナルの受信、またはサーバーエラーまでブロックする
// Server ごとに一度だけ呼べる。二度目以降は ErrAlreadyStarted を返す
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.config.ServerAddress())
	if err != nil {
		return fmt.Errorf("リッスンに失敗 %s: %w", s.config.ServerAddress(), err)
	}

	// シグナルハンドリング
	sigCtx, stop := signal.NotifyContext(ctx, s.signals...)
	defer stop()

	s.startedAt = time.Now()
	s.addr = ln.Addr().String()
	close(s.ready)

	s.log.WithFields(logrus.Fields{
		"addr": s.addr,
		"root": s.static.Root(),
	}).Info("HTTPサーバーを起動しました")
	color.New(color.FgGreen).Fprintf(s.console, "Serving at %s\n", config.DisplayURLFor(s.addr))
	fmt.Fprintln(s.console, "Press Ctrl+C to stop the server")

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		switch {
		case ctx.Err() != nil:
			s.log.Info("コンテキストがキャンセルされました")
		case sigCtx.Err() != nil:
			s.log.Info("シグナルを受信しました")
		}
		return s.Shutdown()
	})
	return g.Wait()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 処理中のリクエストは ShutdownTimeout まで完了を待つ
func (s *Server) Shutdown() error {
	s.log.Info("サーバーをシャットダウンしています...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	fmt.Fprintln(s.console, "\nServer stopped.")
	s.log.Info("サーバーが正常にシャットダウンされました")
	return nil
}
