// Package main はカメラの動作確認コマンドです
//
// 設定されたバックエンドを開いて5フレーム読み取り、失敗した場合はもう一方を試す。
// どちらも失敗した場合は終了コード1で終了する。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"camstream/internal/app"
	"camstream/internal/camera"
	"camstream/internal/config"
	"camstream/internal/log"

	"go.uber.org/zap"
)

const testFrames = 5

func main() {
	var (
		source = flag.String("source", "", "最初に試すカメラソース (デフォルト: CAMERA_SOURCE)")
		frames = flag.Int("frames", testFrames, "読み取るフレーム数")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		if cfg.Camera.Source, err = camera.ParseSourceType(*source); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
	}

	if _, err := log.Init(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "ロガーの初期化に失敗しました: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	fmt.Println("=== カメラテスト ===")
	fmt.Println()
	fmt.Printf("設定されたカメラソース: %s\n", cfg.Camera.Source)
	fmt.Println()

	listDevices(ctx)

	factory := app.NewProductionSourceFactory()
	order := []camera.SourceType{cfg.Camera.Source}
	for _, t := range camera.SourceTypes() {
		if t != cfg.Camera.Source {
			order = append(order, t)
		}
	}

	success := false
	for i, sourceType := range order {
		if i > 0 {
			fmt.Printf("\n%s をフォールバックとして試します...\n", sourceType)
		}
		if err := testSource(ctx, factory, sourceType, cfg.Camera, *frames, log.Named(sourceType.String())); err != nil {
			fmt.Printf("❌ %s のテストに失敗しました: %v\n", sourceType, err)
			log.Warn("カメラテストに失敗しました", zap.String("source", sourceType.String()), zap.Error(err))
			continue
		}
		fmt.Printf("✅ %s のテストに成功しました\n", sourceType)
		success = true
		break
	}

	fmt.Println()
	if !success {
		fmt.Println("❌ 全てのカメラテストに失敗しました")
		fmt.Println("  - カメラが接続されているか確認してください")
		fmt.Println("  - libcamera の場合: sudo apt install -y rpicam-apps")
		fmt.Println("  - v4l2-ctl --list-devices でデバイスを確認してください")
		log.Sync()
		os.Exit(1)
	}
	fmt.Println("🎉 カメラテストが完了しました")
}

// listDevices は検出されたV4L2デバイスを表示する
func listDevices(ctx context.Context) {
	devices, err := camera.NewLinuxDiscovery().ScanDevices(ctx)
	if err != nil {
		fmt.Printf("デバイスの検出に失敗しました: %v\n\n", err)
		return
	}

	fmt.Printf("検出されたデバイス: %d\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  [%d] %s %s", d.Index, d.Path, d.Name)
		if len(d.Formats) > 0 {
			fmt.Printf(" %v", d.Formats)
		}
		fmt.Println()
	}
	fmt.Println()
}

// testSource はバックエンドを開いて指定枚数のフレームを読み取る
func testSource(ctx context.Context, factory *camera.SourceFactory, sourceType camera.SourceType, cfg camera.Config, frames int, logger *zap.Logger) error {
	fmt.Printf("%s をテストしています (デバイス: %s)...\n", sourceType, cfg.DeviceFor(sourceType))

	backend, err := factory.Open(ctx, sourceType, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()
	fmt.Printf("✅ %s をオープンしました\n", sourceType)

	for i := 1; i <= frames; i++ {
		frame, err := readFrame(ctx, backend)
		if err != nil {
			return fmt.Errorf("フレーム %d の読み取りに失敗: %w", i, err)
		}
		fmt.Printf("✅ フレーム %d: %dx%dx%d (%s)\n", i, frame.Width, frame.Height, frame.Channels, frame.Order)
		log.Debug("フレームを読み取りました", zap.Int("index", i), zap.Time("captured_at", frame.CapturedAt))
	}
	return nil
}

// readFrame は1フレームを読み取る。最初のフレームが届くまで少し待つ
func readFrame(ctx context.Context, backend camera.Backend) (*camera.Frame, error) {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		frame, err := backend.Read(ctx)
		if err == nil {
			if err = frame.Validate(); err == nil {
				return frame, nil
			}
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return nil, lastErr
}
