package camera

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestFrame_Validate(t *testing.T) {
	testCases := []struct {
		name      string
		frame     *Frame
		expectErr bool
		isEmpty   bool
	}{
		{"nil", nil, true, true},
		{"ピクセルなし", &Frame{Width: 2, Height: 2, Channels: 3}, true, true},
		{"サイズ0", &Frame{Width: 0, Height: 2, Channels: 3, Pix: []byte{1}}, true, true},
		{"チャンネル数不正", &Frame{Width: 1, Height: 1, Channels: 2, Pix: []byte{1, 2}}, true, false},
		{"サイズ不一致", &Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 11)}, true, false},
		{"グレースケール", &Frame{Width: 2, Height: 2, Channels: 1, Pix: make([]byte, 4)}, false, false},
		{"BGR", NewTestFrame(4, 3, OrderBGR), false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.frame.Validate()
			if tc.expectErr && err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !tc.expectErr && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tc.isEmpty && !errors.Is(err, ErrEmptyFrame) {
				t.Errorf("Expected ErrEmptyFrame, got %v", err)
			}
		})
	}
}

func TestFrame_ToBGR(t *testing.T) {
	rgb := &Frame{Width: 2, Height: 1, Channels: 3, Order: OrderRGB, Pix: []byte{10, 20, 30, 40, 50, 60}}

	bgr := rgb.ToBGR()
	if bgr.Order != OrderBGR {
		t.Errorf("Expected BGR order, got %s", bgr.Order)
	}
	expected := []byte{30, 20, 10, 60, 50, 40}
	for i, v := range expected {
		if bgr.Pix[i] != v {
			t.Fatalf("Pix[%d]: expected %d, got %d", i, v, bgr.Pix[i])
		}
	}

	// 元のフレームは変更しない
	if rgb.Pix[0] != 10 || rgb.Order != OrderRGB {
		t.Error("Expected source frame to be unchanged")
	}

	// 既にBGRならそのまま
	if again := bgr.ToBGR(); again != bgr {
		t.Error("Expected BGR frame to be returned as is")
	}
}

func TestFrame_ImageRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 20, A: 255})
		}
	}

	for _, order := range []ChannelOrder{OrderBGR, OrderRGB} {
		t.Run(order.String(), func(t *testing.T) {
			frame := FrameFromImage(img, order)
			if err := frame.Validate(); err != nil {
				t.Fatalf("Validate failed: %v", err)
			}

			first := frame.Pix[0]
			if order == OrderBGR && first != 20 {
				t.Errorf("Expected blue first for BGR, got %d", first)
			}
			if order == OrderRGB && first != 200 {
				t.Errorf("Expected red first for RGB, got %d", first)
			}

			back, err := frame.Image()
			if err != nil {
				t.Fatalf("Image failed: %v", err)
			}
			r, g, b, _ := back.At(1, 1).RGBA()
			if r>>8 != 200 || g>>8 != 100 || b>>8 != 20 {
				t.Errorf("Unexpected color after round trip: %d %d %d", r>>8, g>>8, b>>8)
			}
		})
	}
}
