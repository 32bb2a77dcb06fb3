package libcamera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"camstream/internal/camera"
)

var (
	markerSOI = []byte{0xFF, 0xD8}
	markerEOI = []byte{0xFF, 0xD9}
)

// defaultMaxFrameSize は完全なフレームを待つ間に保持する最大バイト数
const defaultMaxFrameSize = 8 * 1024 * 1024

// jpegSplitter は連続したMJPEGバイト列からJPEG画像を切り出す
type jpegSplitter struct {
	buf     []byte
	maxSize int
}

func newJPEGSplitter() *jpegSplitter {
	return &jpegSplitter{maxSize: defaultMaxFrameSize}
}

// Push はチャンクを追加し、完成したJPEG画像を返す
func (s *jpegSplitter) Push(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)

	var frames [][]byte
	for {
		start := bytes.Index(s.buf, markerSOI)
		if start == -1 {
			// 次のチャンクでマーカーが完成する可能性があるため末尾1バイトを残す
			if n := len(s.buf); n > 0 {
				s.buf = append(s.buf[:0], s.buf[n-1])
			}
			return frames
		}

		end := bytes.Index(s.buf[start+len(markerSOI):], markerEOI)
		if end == -1 {
			if len(s.buf)-start > s.maxSize {
				s.buf = s.buf[:0]
			} else if start > 0 {
				s.buf = append(s.buf[:0], s.buf[start:]...)
			}
			return frames
		}

		end += start + len(markerSOI) + len(markerEOI)
		frame := make([]byte, end-start)
		copy(frame, s.buf[start:end])
		frames = append(frames, frame)

		s.buf = append(s.buf[:0], s.buf[end:]...)
	}
}

// decodeRGB はJPEGをRGB順の生フレームに展開する
func decodeRGB(data []byte) (*camera.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("JPEGのデコードに失敗: %w", err)
	}

	ycc, ok := img.(*image.YCbCr)
	if !ok {
		return camera.FrameFromImage(img, camera.OrderRGB), nil
	}

	bounds := ycc.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, camera.ErrEmptyFrame
	}

	pix := make([]byte, 0, w*h*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			yi := ycc.YOffset(x, y)
			ci := ycc.COffset(x, y)
			r, g, b := color.YCbCrToRGB(ycc.Y[yi], ycc.Cb[ci], ycc.Cr[ci])
			pix = append(pix, r, g, b)
		}
	}

	return &camera.Frame{
		Width:      w,
		Height:     h,
		Channels:   3,
		Order:      camera.OrderRGB,
		Pix:        pix,
		CapturedAt: time.Now(),
	}, nil
}
