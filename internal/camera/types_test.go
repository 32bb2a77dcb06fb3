package camera

import (
	"context"
	"errors"
	"testing"
)

func TestParseSourceType(t *testing.T) {
	testCases := []struct {
		input     string
		expected  SourceType
		expectErr bool
	}{
		{"opencv", SourceTypeOpenCV, false},
		{"libcamera", SourceTypeLibcamera, false},
		{"OpenCV", SourceTypeOpenCV, false},
		{" LIBCAMERA ", SourceTypeLibcamera, false},
		{"", "", true},
		{"invalid", "", true},
		{"picamera", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseSourceType(tc.input)
			if tc.expectErr {
				if !errors.Is(err, ErrInvalidSource) {
					t.Errorf("Expected ErrInvalidSource, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Source != SourceTypeOpenCV {
		t.Errorf("Expected opencv, got %s", cfg.Source)
	}
	if cfg.BufferCount != 6 || cfg.FrameRate != 30 {
		t.Errorf("Unexpected libcamera defaults: buffer=%d fps=%d", cfg.BufferCount, cfg.FrameRate)
	}
	if cfg.Quality != DefaultQuality {
		t.Errorf("Expected quality %d, got %d", DefaultQuality, cfg.Quality)
	}
}

func TestConfig_DeviceFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenCVDevice = 2
	cfg.LibcameraDevice = "/dev/video10"

	if got := cfg.DeviceFor(SourceTypeOpenCV); got != "2" {
		t.Errorf("Expected 2, got %q", got)
	}
	if got := cfg.DeviceFor(SourceTypeLibcamera); got != "/dev/video10" {
		t.Errorf("Expected /dev/video10, got %q", got)
	}
	if got := cfg.DeviceFor("unknown"); got != "" {
		t.Errorf("Expected empty, got %q", got)
	}
}

func TestSourceFactory(t *testing.T) {
	factory, _, _ := NewMockSourceFactory()

	types := factory.GetSupportedTypes()
	if len(types) != 2 || types[0] != SourceTypeLibcamera || types[1] != SourceTypeOpenCV {
		t.Errorf("Unexpected supported types: %v", types)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	empty := NewSourceFactory()
	if _, err := empty.Open(ctx, SourceTypeOpenCV, DefaultConfig(), nil); !IsPermanent(err) {
		t.Errorf("Expected permanent error for unregistered type, got %v", err)
	}
}
