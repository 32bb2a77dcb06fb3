package libcamera

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"camstream/internal/camera"

	"go.uber.org/zap"
)

func TestOpen_LibraryUnavailable(t *testing.T) {
	cfg := camera.DefaultConfig()
	cfg.SettleDelay = 0

	_, err := OpenWithOptions(context.Background(), cfg, Options{
		Commands: []string{"camstream-no-such-command"},
	}, nil)
	if err == nil {
		t.Fatal("Expected error when command is missing")
	}
	if !errors.Is(err, camera.ErrLibraryUnavailable) {
		t.Errorf("Expected ErrLibraryUnavailable, got %v", err)
	}
	if !camera.IsPermanent(err) {
		t.Error("Expected missing command to be permanent")
	}
}

func TestOpen_ProcessExitsDuringSettle(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true コマンドがありません")
	}

	cfg := camera.DefaultConfig()
	cfg.SettleDelay = 2 * time.Second

	_, err := OpenWithOptions(context.Background(), cfg, Options{
		Commands: []string{"true"},
	}, zap.NewNop())
	if err == nil {
		t.Fatal("Expected error when process exits")
	}
	if !errors.Is(err, camera.ErrOpenFailed) {
		t.Errorf("Expected ErrOpenFailed, got %v", err)
	}
	if camera.IsPermanent(err) {
		t.Error("Expected early exit to be transient")
	}
}

func TestArgs(t *testing.T) {
	cfg := camera.DefaultConfig()
	cfg.TuningFile = "imx708_noir.json"

	args := Args(cfg)
	want := map[string]string{
		"--codec":        "mjpeg",
		"--framerate":    "30",
		"--buffer-count": "6",
		"--width":        "640",
		"--height":       "480",
		"--tuning-file":  "imx708_noir.json",
		"--output":       "-",
	}

	got := make(map[string]string)
	for i := 0; i+1 < len(args); i++ {
		got[args[i]] = args[i+1]
	}
	for flag, value := range want {
		if got[flag] != value {
			t.Errorf("Expected %s %s, got %q", flag, value, got[flag])
		}
	}
}

// newTestSource はフレーム待ちを短くしたテスト用の Source を作成する
func newTestSource(staleAfter time.Duration) *Source {
	src := newSource("test", staleAfter, zap.NewNop())
	src.frameTimeout = 50 * time.Millisecond
	return src
}

func TestSource_PumpAndRead(t *testing.T) {
	src := newTestSource(time.Minute)

	ctx := context.Background()
	if _, err := src.Read(ctx); !errors.Is(err, camera.ErrNoFrame) {
		t.Fatalf("Expected ErrNoFrame before first frame, got %v", err)
	}

	var stream []byte
	stream = append(stream, solidJPEG(t, 8, 8, color.RGBA{R: 255, A: 255})...)
	stream = append(stream, solidJPEG(t, 8, 8, color.RGBA{B: 255, A: 255})...)
	src.pump(bytes.NewReader(stream))

	frame, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if frame.Order != camera.OrderBGR {
		t.Errorf("Expected BGR order, got %s", frame.Order)
	}
	// 最後のフレーム（青）はBGRでは先頭チャンネル
	if frame.Pix[0] < 200 {
		t.Errorf("Expected latest blue frame, got %v", frame.Pix[:3])
	}
}

func TestSource_ReadDoesNotRepeatFrame(t *testing.T) {
	src := newTestSource(time.Minute)
	src.pump(bytes.NewReader(solidJPEG(t, 8, 8, color.RGBA{G: 255, A: 255})))

	ctx := context.Background()
	if _, err := src.Read(ctx); err != nil {
		t.Fatalf("First Read failed: %v", err)
	}

	// 同じフレームは二度返さず、新しいフレームを待ってタイムアウトする
	start := time.Now()
	if _, err := src.Read(ctx); !errors.Is(err, camera.ErrNoFrame) {
		t.Fatalf("Expected ErrNoFrame for already consumed frame, got %v", err)
	}
	if waited := time.Since(start); waited < 40*time.Millisecond {
		t.Errorf("Expected Read to wait for a new frame, returned after %s", waited)
	}

	// ctx の終了でも戻る
	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	src.frameTimeout = time.Minute
	if _, err := src.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestSource_ReadWaitsForNewFrame(t *testing.T) {
	src := newSource("test", time.Minute, zap.NewNop())

	result := make(chan error, 1)
	go func() {
		_, err := src.Read(context.Background())
		result <- err
	}()

	select {
	case err := <-result:
		t.Fatalf("Expected Read to block until a frame arrives, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	src.publish(camera.NewTestFrame(4, 4, camera.OrderRGB))

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not wake up on a new frame")
	}
}

func TestSource_ReadWakesOnClose(t *testing.T) {
	src := newSource("test", time.Minute, zap.NewNop())

	result := make(chan error, 1)
	go func() {
		_, err := src.Read(context.Background())
		result <- err
	}()

	time.Sleep(10 * time.Millisecond)
	_ = src.Close()

	select {
	case err := <-result:
		if !errors.Is(err, camera.ErrNoFrame) {
			t.Errorf("Expected ErrNoFrame after close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
}

// backendSource は Backend を camera.FrameSource として使うためのアダプター
type backendSource struct {
	backend camera.Backend
}

func (a backendSource) RetrieveFrame(ctx context.Context) (*camera.Frame, error) {
	return a.backend.Read(ctx)
}

func TestSource_StreamYieldsEachFrameOnce(t *testing.T) {
	src := newTestSource(time.Minute)
	src.pump(bytes.NewReader(solidJPEG(t, 64, 48, color.RGBA{R: 128, G: 64, A: 255})))

	stream := camera.NewStream(backendSource{src}, camera.NewJPEGEncoder(), camera.StreamOptions{
		Backoff: time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	parts := 0
	for {
		if _, err := stream.Next(ctx); err != nil {
			break
		}
		parts++
	}

	if parts != 1 || stream.Frames() != 1 {
		t.Errorf("Expected exactly 1 part for 1 sensor frame, got %d (frames=%d failures=%d)",
			parts, stream.Frames(), stream.Failures())
	}
}

func TestOpen_ExitReportsStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh コマンドがありません")
	}

	script := filepath.Join(t.TempDir(), "fake-rpicam-vid")
	content := "#!/bin/sh\necho 'Preview window unavailable' >&2\necho 'ERROR: *** no cameras available ***' >&2\nexit 1\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := camera.DefaultConfig()
	cfg.SettleDelay = 5 * time.Second

	_, err := OpenWithOptions(context.Background(), cfg, Options{Commands: []string{script}}, zap.NewNop())
	if !errors.Is(err, camera.ErrOpenFailed) {
		t.Fatalf("Expected ErrOpenFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "no cameras available") {
		t.Errorf("Expected stderr in error message, got %v", err)
	}
}

func TestSource_ReadStaleFrame(t *testing.T) {
	src := newTestSource(time.Second)
	frame := camera.NewTestFrame(2, 2, camera.OrderRGB)
	frame.CapturedAt = time.Now().Add(-time.Minute)
	src.publish(frame)

	if _, err := src.Read(context.Background()); !errors.Is(err, camera.ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame for stale frame, got %v", err)
	}
}

func TestSource_CloseIsIdempotent(t *testing.T) {
	src := newTestSource(0)
	src.publish(camera.NewTestFrame(2, 2, camera.OrderRGB))

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
	if src.IsOpened() {
		t.Error("Expected closed source to report not opened")
	}
	if _, err := src.Read(context.Background()); !errors.Is(err, camera.ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame after close, got %v", err)
	}
}
