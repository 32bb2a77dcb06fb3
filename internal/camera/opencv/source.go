package opencv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"camstream/internal/camera"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Source は gocv.VideoCapture を使う camera.Backend 実装
type Source struct {
	device int
	logger *zap.Logger

	// VideoCapture は並行読み取りに対応していないため mu で直列化する
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// Open は設定されたデバイス番号のカメラを開く
// camera.Opener として SourceFactory に登録する
func Open(_ context.Context, cfg camera.Config, logger *zap.Logger) (camera.Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	capture, err := gocv.OpenVideoCapture(cfg.OpenCVDevice)
	if err != nil {
		return nil, fmt.Errorf("%w: デバイス %d: %w", camera.ErrOpenFailed, cfg.OpenCVDevice, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("%w: デバイス %d が準備完了を報告しません", camera.ErrOpenFailed, cfg.OpenCVDevice)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FrameRate > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(cfg.FrameRate))
	}

	logger.Info("OpenCV カメラを初期化しました", zap.Int("device", cfg.OpenCVDevice))

	return &Source{
		device:  cfg.OpenCVDevice,
		logger:  logger,
		capture: capture,
		mat:     gocv.NewMat(),
	}, nil
}

// Type はバックエンドの種別を返す
func (s *Source) Type() camera.SourceType {
	return camera.SourceTypeOpenCV
}

// Read は1フレームを取得する（BGR順）
func (s *Source) Read(_ context.Context) (*camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, fmt.Errorf("%w: デバイス %d はクローズ済み", camera.ErrNoFrame, s.device)
	}
	if ok := s.capture.Read(&s.mat); !ok {
		return nil, fmt.Errorf("%w: デバイス %d からの読み取りに失敗", camera.ErrNoFrame, s.device)
	}
	if s.mat.Empty() {
		return nil, camera.ErrEmptyFrame
	}

	return &camera.Frame{
		Width:      s.mat.Cols(),
		Height:     s.mat.Rows(),
		Channels:   s.mat.Channels(),
		Order:      camera.OrderBGR,
		Pix:        s.mat.ToBytes(),
		CapturedAt: time.Now(),
	}, nil
}

// Close はデバイスを解放する
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}

	err := s.capture.Close()
	_ = s.mat.Close()
	s.capture = nil

	if err != nil {
		return fmt.Errorf("デバイス %d の解放に失敗: %w", s.device, err)
	}
	s.logger.Info("OpenCV カメラを解放しました", zap.Int("device", s.device))
	return nil
}

// IsOpened はデバイスが開いているかを返す
func (s *Source) IsOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil && s.capture.IsOpened()
}
