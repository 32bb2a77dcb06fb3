package camera

import (
	"bytes"
	"errors"
	"image/jpeg"
	"testing"
)

func TestJPEGEncoder_Encode(t *testing.T) {
	encoder := NewJPEGEncoder()
	frame := NewTestFrame(16, 8, OrderBGR)

	data, err := encoder.Encode(frame, DefaultQuality)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatal("Expected JPEG SOI marker")
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("Expected 16x8, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestJPEGEncoder_QualityAffectsSize(t *testing.T) {
	encoder := NewJPEGEncoder()
	frame := NewTestFrame(64, 64, OrderBGR)

	low, err := encoder.Encode(frame, 10)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	high, err := encoder.Encode(frame, 100)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(low) >= len(high) {
		t.Errorf("Expected lower quality to be smaller: low=%d high=%d", len(low), len(high))
	}
}

func TestJPEGEncoder_InvalidFrame(t *testing.T) {
	encoder := NewJPEGEncoder()

	_, err := encoder.Encode(&Frame{Width: 2, Height: 2, Channels: 3}, DefaultQuality)
	if !errors.Is(err, ErrEncode) {
		t.Errorf("Expected ErrEncode, got %v", err)
	}
}

func TestClampQuality(t *testing.T) {
	testCases := []struct {
		input    int
		expected int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{80, 80},
		{100, 100},
		{150, 100},
	}

	for _, tc := range testCases {
		if got := ClampQuality(tc.input); got != tc.expected {
			t.Errorf("ClampQuality(%d): expected %d, got %d", tc.input, tc.expected, got)
		}
	}
}
