// Package app は実機のバックエンドとエンコーダーを組み立てる
package app

import (
	"camstream/internal/camera"
	"camstream/internal/camera/libcamera"
	"camstream/internal/camera/opencv"
	"camstream/internal/config"
	"camstream/internal/server"

	"go.uber.org/zap"
)

// NewProductionSourceFactory は実機のバックエンドを登録したファクトリーを返す
func NewProductionSourceFactory() *camera.SourceFactory {
	factory := camera.NewSourceFactory()
	factory.Register(camera.SourceTypeOpenCV, opencv.Open)
	factory.Register(camera.SourceTypeLibcamera, libcamera.Open)
	return factory
}

// NewEncoder は設定に応じたJPEGエンコーダーを返す
func NewEncoder(name string) camera.Encoder {
	if name == config.EncoderNative {
		return camera.NewJPEGEncoder()
	}
	return opencv.NewEncoder()
}

// NewServer は設定からサーバーを組み立てる
func NewServer(cfg *config.Config, logger *zap.Logger) *server.Server {
	selector := camera.NewSelector(cfg.Camera, NewProductionSourceFactory(), logger.Named("camera"))
	return server.New(cfg, selector, NewEncoder(cfg.Stream.Encoder), camera.NewLinuxDiscovery(), logger.Named("server"))
}
