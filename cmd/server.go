// Package main はカメラ配信サーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"camstream/internal/app"
	"camstream/internal/camera"
	"camstream/internal/config"
	"camstream/internal/log"

	"go.uber.org/zap"
)

func main() {
	// コマンドラインオプション
	var (
		host   = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port   = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		source = flag.String("source", "", "カメラソース opencv または libcamera (デフォルト: opencv)")
		help   = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("camstream")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *source != "" {
		sourceType, err := camera.ParseSourceType(*source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		cfg.Camera.Source = sourceType
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "設定の検証に失敗しました: %v\n", err)
		os.Exit(2)
	}

	logger, err := log.Init(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ロガーの初期化に失敗しました: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

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
