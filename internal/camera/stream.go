package camera

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Boundary はmultipartの境界文字列
	Boundary = "frame"

	// ContentType はストリームレスポンスのContent-Type
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

	// DefaultBackoff は取得・エンコード失敗時の待機時間
	DefaultBackoff = 100 * time.Millisecond
)

var (
	partHeader = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	partTail   = []byte("\r\n")
)

// FrameSource はフレームの取得元
type FrameSource interface {
	RetrieveFrame(ctx context.Context) (*Frame, error)
}

// Part はエンコード済みJPEGを1つのmultipartパートに包む
func Part(jpegData []byte) []byte {
	part := make([]byte, 0, len(partHeader)+len(jpegData)+len(partTail))
	part = append(part, partHeader...)
	part = append(part, jpegData...)
	part = append(part, partTail...)
	return part
}

// WritePart はmultipartパートを書き込む
// パートごとのContent-Lengthは付与しない
func WritePart(w io.Writer, jpegData []byte) error {
	if _, err := w.Write(partHeader); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	_, err := w.Write(partTail)
	return err
}

// StreamOptions はストリームの設定
type StreamOptions struct {
	Quality int           // JPEG品質
	Backoff time.Duration // 失敗時の待機時間
	Logger  *zap.Logger
}

// Stream は1つのレスポンスに対応するフレーム生成器
// 視聴者ごとに独立したインスタンスを作成し、共有のSelectorから取得する
type Stream struct {
	id      string
	source  FrameSource
	encoder Encoder
	quality int
	backoff time.Duration
	logger  *zap.Logger

	frames   atomic.Int64
	failures atomic.Int64
}

// NewStream は新しいStreamを作成する
func NewStream(source FrameSource, encoder Encoder, opts StreamOptions) *Stream {
	if opts.Quality == 0 {
		opts.Quality = DefaultQuality
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	id := uuid.New().String()
	return &Stream{
		id:      id,
		source:  source,
		encoder: encoder,
		quality: opts.Quality,
		backoff: opts.Backoff,
		logger:  opts.Logger.With(zap.String("stream_id", id)),
	}
}

// ID はストリームの識別子を返す
func (s *Stream) ID() string {
	return s.id
}

// Frames は生成したフレーム数を返す
func (s *Stream) Frames() int64 {
	return s.frames.Load()
}

// Failures は取得・エンコードに失敗した回数を返す
func (s *Stream) Failures() int64 {
	return s.failures.Load()
}

// NextJPEG は次のエンコード済みフレームを返す
// 失敗時は待機して無限に再試行し、ctx が終了した場合のみエラーを返す
func (s *Stream) NextJPEG(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := s.produce(ctx)
		if err == nil {
			s.frames.Add(1)
			return data, nil
		}

		s.failures.Add(1)
		s.logger.Debug("フレームの生成に失敗、再試行します", zap.Error(err))

		if err := sleep(ctx, s.backoff); err != nil {
			return nil, err
		}
	}
}

// Next は次のmultipartパートを返す
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	data, err := s.NextJPEG(ctx)
	if err != nil {
		return nil, err
	}
	return Part(data), nil
}

// produce は1回分の取得とエンコードを行う
func (s *Stream) produce(ctx context.Context) ([]byte, error) {
	frame, err := s.source.RetrieveFrame(ctx)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, ErrNoFrame
	}

	data, err := s.encoder.Encode(frame, s.quality)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.Join(ErrEncode, ErrEmptyFrame)
	}
	return data, nil
}

// Capture は1回だけフレームを取得してエンコードする（再試行なし）
func Capture(ctx context.Context, source FrameSource, encoder Encoder, quality int) ([]byte, error) {
	s := &Stream{source: source, encoder: encoder, quality: quality}
	return s.produce(ctx)
}

// sleep は ctx を考慮して待機する
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
