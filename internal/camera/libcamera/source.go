package libcamera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"camstream/internal/camera"

	"go.uber.org/zap"
)

// DefaultCommands は探索するコマンド名（新しい名前を優先）
var DefaultCommands = []string{"rpicam-vid", "libcamera-vid"}

const (
	// DefaultStaleAfter はこの時間より古いフレームを返さない
	DefaultStaleAfter = 5 * time.Second

	// DefaultFrameTimeout は Read が次のフレームを待つ最大時間
	DefaultFrameTimeout = 2 * time.Second

	// stderrTailLines はエラー報告用に保持する stderr の行数
	stderrTailLines = 5
)

// Options はバックエンドの追加設定
type Options struct {
	Commands     []string      // 探索するコマンド名
	StaleAfter   time.Duration // フレームの有効期間
	FrameTimeout time.Duration // 次のフレームを待つ最大時間
}

// Source は rpicam-vid を使う camera.Backend 実装
type Source struct {
	command      string
	staleAfter   time.Duration
	frameTimeout time.Duration
	logger       *zap.Logger

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	done    chan struct{} // プロセス終了で close される
	closing chan struct{} // Close で close される

	// latest は未読のフレームのみ保持し、Read で取り出したら破棄する
	mu         sync.Mutex
	latest     *camera.Frame
	seq        uint64        // 受信したフレームの通し番号
	taken      uint64        // 最後に Read が返したフレームの番号
	notify     chan struct{} // 新しいフレームの受信で close して作り直す
	closed     bool
	exitErr    error
	stderrTail []string

	closeOnce sync.Once
}

// Open はセンサーを起動し、安定待ちの後にハンドルを返す
// camera.Opener として SourceFactory に登録する
func Open(ctx context.Context, cfg camera.Config, logger *zap.Logger) (camera.Backend, error) {
	src, err := OpenWithOptions(ctx, cfg, Options{}, logger)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// OpenWithOptions はコマンド名などを指定してセンサーを起動する
func OpenWithOptions(ctx context.Context, cfg camera.Config, opts Options, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := LookCommand(opts.Commands)
	if err != nil {
		return nil, err
	}

	src := newSource(path, opts.StaleAfter, logger)
	if opts.FrameTimeout > 0 {
		src.frameTimeout = opts.FrameTimeout
	}
	if err := src.start(cfg); err != nil {
		return nil, err
	}

	// 自動露出とホワイトバランスの収束を待つ
	if err := src.settle(ctx, cfg.SettleDelay); err != nil {
		_ = src.Close()
		return nil, err
	}

	logger.Info("libcamera を初期化しました",
		zap.String("command", path),
		zap.String("device", cfg.LibcameraDevice),
		zap.Int("buffer_count", cfg.BufferCount),
		zap.Int("frame_rate", cfg.FrameRate))
	return src, nil
}

// LookCommand は利用可能な最初のコマンドのパスを返す
// 見つからない場合は camera.ErrLibraryUnavailable を返す
func LookCommand(commands []string) (string, error) {
	if len(commands) == 0 {
		commands = DefaultCommands
	}
	for _, name := range commands {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %v が見つかりません (sudo apt install -y rpicam-apps)", camera.ErrLibraryUnavailable, commands)
}

// Args はセンサー起動コマンドの引数を組み立てる
func Args(cfg camera.Config) []string {
	args := []string{
		"--nopreview",
		"--timeout", "0",
		"--codec", "mjpeg",
		"--quality", strconv.Itoa(camera.ClampQuality(cfg.Quality)),
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		args = append(args, "--width", strconv.Itoa(cfg.Width), "--height", strconv.Itoa(cfg.Height))
	}
	if cfg.FrameRate > 0 {
		args = append(args, "--framerate", strconv.Itoa(cfg.FrameRate))
	}
	if cfg.BufferCount > 0 {
		args = append(args, "--buffer-count", strconv.Itoa(cfg.BufferCount))
	}
	if cfg.TuningFile != "" {
		args = append(args, "--tuning-file", cfg.TuningFile)
	}
	return append(args, "--output", "-")
}

func newSource(command string, staleAfter time.Duration, logger *zap.Logger) *Source {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Source{
		command:      command,
		staleAfter:   staleAfter,
		frameTimeout: DefaultFrameTimeout,
		logger:       logger,
		done:         make(chan struct{}),
		closing:      make(chan struct{}),
		notify:       make(chan struct{}),
	}
}

// start はサブプロセスを起動してフレーム読み取りを開始する
func (s *Source) start(cfg camera.Config) error {
	// プロセスの寿命はリクエストではなくハンドルに紐づける
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, s.command, Args(cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: stdoutパイプの作成に失敗: %w", camera.ErrOpenFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: stderrパイプの作成に失敗: %w", camera.ErrOpenFailed, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: %s の起動に失敗: %w", camera.ErrOpenFailed, s.command, err)
	}

	s.cmd = cmd
	s.cancel = cancel

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		s.logStderr(stderr)
	}()
	go func() {
		defer close(s.done)
		s.pump(stdout)

		// Wait はパイプを閉じるため、全ての読み取りが終わってから呼ぶ
		<-stderrDone
		err := cmd.Wait()
		s.mu.Lock()
		if s.exitErr == nil {
			s.exitErr = err
		}
		s.mu.Unlock()
	}()
	return nil
}

// settle は指定時間待機する。その間にプロセスが終了した場合はエラーを返す
func (s *Source) settle(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", camera.ErrOpenFailed, ctx.Err())
	case <-s.done:
		return fmt.Errorf("%w: %s が起動直後に終了しました: %s", camera.ErrOpenFailed, s.command, s.exitReason())
	case <-timer.C:
		return nil
	}
}

// pump は標準出力からJPEGを切り出し、未読フレームとして登録する
func (s *Source) pump(r io.Reader) {
	splitter := newJPEGSplitter()
	buf := make([]byte, 64*1024)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, data := range splitter.Push(buf[:n]) {
				frame, decErr := decodeRGB(data)
				if decErr != nil {
					s.logger.Debug("フレームのデコードに失敗", zap.Error(decErr))
					continue
				}
				s.publish(frame)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.exitErr = err
				s.mu.Unlock()
				s.logger.Warn("フレーム読み取りエラー", zap.Error(err))
			}
			return
		}
	}
}

// publish は新しいフレームを未読として登録し、待機中の Read を起こす
func (s *Source) publish(frame *camera.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = frame
	s.seq++
	close(s.notify)
	s.notify = make(chan struct{})
}

// logStderr は stderr をログに出し、末尾の数行をエラー報告用に保持する
func (s *Source) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Debug(line, zap.String("command", s.command))

		if strings.TrimSpace(line) == "" {
			continue
		}
		s.mu.Lock()
		s.stderrTail = append(s.stderrTail, line)
		if len(s.stderrTail) > stderrTailLines {
			s.stderrTail = s.stderrTail[len(s.stderrTail)-stderrTailLines:]
		}
		s.mu.Unlock()
	}
}

// exitReason は終了ステータスと stderr の末尾をまとめる
func (s *Source) exitReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	reason := fmt.Sprint(s.exitErr)
	if s.exitErr == nil {
		reason = "exit status 0"
	}
	if len(s.stderrTail) > 0 {
		reason += ": " + strings.Join(s.stderrTail, " / ")
	}
	return reason
}

// Type はバックエンドの種別を返す
func (s *Source) Type() camera.SourceType {
	return camera.SourceTypeLibcamera
}

// Read は前回返したものより新しいフレームを待ち、BGR順に並べ替えて返す
// 返したフレームは保持しない。ctx の終了、Close、プロセス終了、
// frameTimeout の経過のいずれかで ErrNoFrame を返す
func (s *Source) Read(ctx context.Context) (*camera.Frame, error) {
	timer := time.NewTimer(s.frameTimeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: クローズ済み", camera.ErrNoFrame)
		}
		if s.latest != nil && s.seq > s.taken {
			frame := s.latest
			s.latest = nil
			s.taken = s.seq
			s.mu.Unlock()
			return s.normalize(frame)
		}
		notify := s.notify
		s.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", camera.ErrNoFrame, ctx.Err())
		case <-s.closing:
			return nil, fmt.Errorf("%w: クローズ済み", camera.ErrNoFrame)
		case <-s.done:
			return nil, fmt.Errorf("%w: %s が終了しました: %s", camera.ErrNoFrame, s.command, s.exitReason())
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s 以内に新しいフレームが届きません", camera.ErrNoFrame, s.frameTimeout)
		}
	}
}

// normalize は取り出したフレームを検査してBGR順にする
func (s *Source) normalize(frame *camera.Frame) (*camera.Frame, error) {
	if age := time.Since(frame.CapturedAt); age > s.staleAfter {
		return nil, fmt.Errorf("%w: フレームが古すぎます (%s)", camera.ErrNoFrame, age.Truncate(time.Millisecond))
	}
	if len(frame.Pix) == 0 {
		return nil, camera.ErrEmptyFrame
	}
	return frame.ToBGR(), nil
}

// Close はサブプロセスを停止する。二重に呼び出しても安全
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.latest = nil
		s.mu.Unlock()
		close(s.closing)

		if s.cancel == nil {
			return
		}
		s.cancel()

		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			s.logger.Warn("libcamera プロセスの終了待ちがタイムアウトしました")
		}
		s.logger.Info("libcamera を解放しました")
	})
	return nil
}

// IsOpened はプロセスが動作中かを返す
func (s *Source) IsOpened() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.cmd == nil {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
