package main

import (
	"context"
	"fmt"
	"os"

	"camstream/internal/app"
	"camstream/internal/config"
	"camstream/internal/log"

	"go.uber.org/zap"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.Init(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ロガーの初期化に失敗しました: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// サーバーを作成
	srv := app.NewServer(cfg, logger)

	// サーバーを起動
	log.Info("camstream サーバーを起動します",
		zap.String("addr", cfg.ServerAddress()),
		zap.String("source", cfg.Camera.Source.String()))
	if err := srv.Start(context.Background()); err != nil {
		log.Error("サーバーの起動に失敗しました", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}
