package camera

import (
	"fmt"
	"image"
	"time"
)

// ChannelOrder はピクセルのチャンネル並びを表す
type ChannelOrder int

const (
	// OrderBGR は opencv バックエンドの並び（下流はこの並びを前提とする）
	OrderBGR ChannelOrder = iota
	// OrderRGB は libcamera バックエンドのネイティブな並び
	OrderRGB
)

func (o ChannelOrder) String() string {
	switch o {
	case OrderBGR:
		return "BGR"
	case OrderRGB:
		return "RGB"
	default:
		return fmt.Sprintf("ChannelOrder(%d)", int(o))
	}
}

// Frame は1回のキャプチャで得られた非圧縮の画像
// 反復ごとに生成・破棄され、キャッシュされない
type Frame struct {
	Width      int          // 画像幅
	Height     int          // 画像高さ
	Channels   int          // 1ピクセルあたりのチャンネル数 (1, 3, 4)
	Order      ChannelOrder // チャンネルの並び
	Pix        []byte       // 行優先のピクセルデータ
	CapturedAt time.Time    // 取得時刻
}

// Validate はフレームの妥当性を検証する
func (f *Frame) Validate() error {
	if f == nil || len(f.Pix) == 0 || f.Width <= 0 || f.Height <= 0 {
		return ErrEmptyFrame
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("サポートされていないチャンネル数: %d", f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Pix) != want {
		return fmt.Errorf("ピクセルデータのサイズが不正: got %d, want %d", len(f.Pix), want)
	}
	return nil
}

// ToBGR はBGR順に並べ替えたフレームを返す
// 既にBGRの場合や単一チャンネルの場合はそのまま返す
func (f *Frame) ToBGR() *Frame {
	if f.Order == OrderBGR || f.Channels < 3 {
		return f
	}

	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	for i := 0; i+2 < len(pix); i += f.Channels {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}

	out := *f
	out.Pix = pix
	out.Order = OrderBGR
	return &out
}

// Image はフレームを image.Image に変換する
func (f *Frame) Image() (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Channels == 1 {
		gray := image.NewGray(rect)
		copy(gray.Pix, f.Pix)
		return gray, nil
	}

	// R と B の位置
	r, b := 2, 0
	if f.Order == OrderRGB {
		r, b = 0, 2
	}

	rgba := image.NewRGBA(rect)
	for src, dst := 0, 0; src < len(f.Pix); src, dst = src+f.Channels, dst+4 {
		rgba.Pix[dst] = f.Pix[src+r]
		rgba.Pix[dst+1] = f.Pix[src+1]
		rgba.Pix[dst+2] = f.Pix[src+b]
		rgba.Pix[dst+3] = 0xFF
	}
	return rgba, nil
}

// FrameFromImage は image.Image から指定された並びのフレームを作成する
func FrameFromImage(img image.Image, order ChannelOrder) *Frame {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]byte, 0, w*h*3)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			if order == OrderRGB {
				pix = append(pix, byte(cr>>8), byte(cg>>8), byte(cb>>8))
			} else {
				pix = append(pix, byte(cb>>8), byte(cg>>8), byte(cr>>8))
			}
		}
	}

	return &Frame{
		Width:      w,
		Height:     h,
		Channels:   3,
		Order:      order,
		Pix:        pix,
		CapturedAt: time.Now(),
	}
}
