package opencv

import (
	"fmt"

	"camstream/internal/camera"

	"gocv.io/x/gocv"
)

// Encoder は gocv.IMEncodeWithParams を使う camera.Encoder 実装
type Encoder struct{}

// NewEncoder は新しいEncoderを作成する
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode はフレームをJPEGにエンコードする
func (e *Encoder) Encode(frame *camera.Frame, quality int) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", camera.ErrEncode, err)
	}
	frame = frame.ToBGR()

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, matType(frame.Channels), frame.Pix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", camera.ErrEncode, err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat,
		[]int{int(gocv.IMWriteJpegQuality), camera.ClampQuality(quality)})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", camera.ErrEncode, err)
	}
	defer buf.Close()

	// NativeByteBuffer は Close 後に無効になるためコピーする
	src := buf.GetBytes()
	if len(src) == 0 {
		return nil, camera.ErrEncode
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func matType(channels int) gocv.MatType {
	switch channels {
	case 1:
		return gocv.MatTypeCV8UC1
	case 4:
		return gocv.MatTypeCV8UC4
	default:
		return gocv.MatTypeCV8UC3
	}
}
