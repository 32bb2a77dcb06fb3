package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"camstream/internal/camera"
	"camstream/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config    *config.Config
	selector  *camera.Selector
	encoder   camera.Encoder
	discovery camera.Discovery
	logger    *zap.Logger

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader

	// 配信中のストリームを終了させるためのベースコンテキスト
	baseCtx    context.Context
	cancelBase context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, selector *camera.Selector, encoder camera.Encoder, discovery camera.Discovery, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if discovery == nil {
		discovery = camera.NewLinuxDiscovery()
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())

	s := &Server{
		config:     cfg,
		selector:   selector,
		encoder:    encoder,
		discovery:  discovery,
		logger:     logger,
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.engine = s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return baseCtx
		},
	}
	return s
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))

	engine.GET("/", s.handleIndex)
	engine.GET("/health", s.handleHealth)
	engine.GET("/video_feed", s.handleVideoFeed)
	engine.GET("/camera_info", s.handleCameraInfo)
	engine.GET("/test_frame", s.handleTestFrame)
	engine.GET("/switch_camera", s.handleSwitchCamera)
	engine.GET("/ws/video_feed", s.handleWebSocket)

	return engine
}

// Start はカメラを初期化してサーバーを起動する
// ctx のキャンセルか SIGINT/SIGTERM でグレースフルシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	// カメラの初期化に失敗してもサーバーは起動する（/health で unhealthy を返す）
	if err := s.selector.Initialize(ctx); err != nil {
		s.logger.Error("カメラを初期化できませんでした。unhealthy として起動します", zap.Error(err))
	}

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("addr", s.config.ServerAddress()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", zap.String("signal", sig.String()))
	case err := <-shutdownCh:
		_ = s.selector.Shutdown()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンし、カメラを解放する
// 二重に呼び出しても安全
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("サーバーをシャットダウンしています...")

		// 配信中のストリームを終了させる
		s.cancelBase()

		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("サーバーのシャットダウンに失敗: %w", err))
		}
		if err := s.selector.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("カメラの解放に失敗: %w", err))
		}

		s.shutdownErr = errors.Join(errs...)
		if s.shutdownErr == nil {
			s.logger.Info("サーバーが正常にシャットダウンされました")
		}
	})
	return s.shutdownErr
}

// requestLogger はリクエストごとにアクセスログを出力するミドルウェア
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Debug("request", fields...)
	}
}
