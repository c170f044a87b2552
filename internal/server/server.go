package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"utsushi/internal/config"
	"utsushi/internal/logbook"
)

// shutdownTimeout はグレースフルシャットダウンの猶予時間
const shutdownTimeout = 5 * time.Second

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	log        *logbook.Log
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, handler *Handler, log *logbook.Log) *Server {
	engine := newEngine(handler, log)

	return &Server{
		config: cfg,
		engine: engine,
		log:    log,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// newEngine はルートとミドルウェアを設定したginエンジンを作成する
func newEngine(handler *Handler, log *logbook.Log) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(recoveryMiddleware(log))

	// 撮影・転送エンドポイント
	engine.GET("/capture", handler.Capture)
	engine.GET("/get_file_chunk", handler.GetFileChunk)
	engine.GET("/get_img", handler.GetImg)
	engine.GET("/get_log", handler.GetLog)

	// 運用エンドポイント
	engine.GET("/health", handler.HealthCheck)
	engine.GET("/metrics", handler.Metrics)

	// 未定義のパスは404を返す
	engine.NoRoute(handler.NotFound)

	return engine
}

// recoveryMiddleware はハンドラのパニックを500応答に変換する
// 内部エラーの詳細はログにのみ記録し、応答には含めない
func recoveryMiddleware(log *logbook.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.AddLine(fmt.Sprintf("ハンドラでパニックが発生しました: %s %s: %v",
					c.Request.Method, c.Request.URL.Path, r))
				c.String(http.StatusInternalServerError, "Internal Server Error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// Start はサーバーを起動する
// コンテキストのキャンセルまたはシグナル受信でグレースフルに停止する
func (s *Server) Start(ctx context.Context) error {
	// 起動失敗の通知用チャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.log.AddLine(fmt.Sprintf("HTTPサーバーを起動しています: %s", s.config.ServerAddress()))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.log.AddLine("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.log.AddLine(fmt.Sprintf("シグナルを受信しました: %v", sig))
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.log.AddLine("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.log.AddLine("サーバーが正常にシャットダウンされました")
	return nil
}
