package camera

import (
	"bytes"
	"fmt"
	"image/jpeg"
)

// DefaultQuality はデフォルトのJPEG品質
const DefaultQuality = 80

// Encoder は生フレームを圧縮画像に変換する
type Encoder interface {
	// Encode はフレームをJPEGにエンコードする
	// 品質は 0-100 のスケールで、設定で固定される
	Encode(frame *Frame, quality int) ([]byte, error)
}

// JPEGEncoder は image/jpeg を使用するエンコーダー
type JPEGEncoder struct{}

// NewJPEGEncoder は新しいJPEGEncoderを作成する
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{}
}

// Encode はフレームをJPEGにエンコードする
func (e *JPEGEncoder) Encode(frame *Frame, quality int) ([]byte, error) {
	img, err := frame.Image()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: ClampQuality(quality)}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEncode
	}
	return buf.Bytes(), nil
}

// ClampQuality は品質を 1-100 の範囲に収める
func ClampQuality(quality int) int {
	switch {
	case quality < 1:
		return 1
	case quality > 100:
		return 100
	default:
		return quality
	}
}
