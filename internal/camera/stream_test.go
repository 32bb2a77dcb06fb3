package camera

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

type failingSource struct{ err error }

func (f failingSource) RetrieveFrame(_ context.Context) (*Frame, error) {
	return nil, f.err
}

type staticEncoder struct{ data []byte }

func (e staticEncoder) Encode(_ *Frame, _ int) ([]byte, error) {
	return e.data, nil
}

func TestPart(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	part := Part(payload)

	expected := append([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n"), payload...)
	expected = append(expected, '\r', '\n')
	if !bytes.Equal(part, expected) {
		t.Errorf("Unexpected part: %q", part)
	}

	var buf bytes.Buffer
	if err := WritePart(&buf, payload); err != nil {
		t.Fatalf("WritePart failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), expected) {
		t.Errorf("WritePart differs from Part: %q", buf.Bytes())
	}
}

func TestStream_Next(t *testing.T) {
	selector, _, _ := newTestSelector(SourceTypeOpenCV)
	if err := selector.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	stream := NewStream(selector, NewJPEGEncoder(), StreamOptions{})
	if stream.ID() == "" {
		t.Error("Expected stream id")
	}

	for i := 0; i < 3; i++ {
		part, err := stream.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !bytes.HasPrefix(part, []byte("--frame\r\n")) {
			t.Fatalf("Expected boundary prefix, got %q", part[:16])
		}
		payload := bytes.TrimPrefix(part, partHeader)
		if len(payload) <= len(partTail) || payload[0] != 0xFF || payload[1] != 0xD8 {
			t.Fatal("Expected JPEG payload")
		}
	}

	if stream.Frames() != 3 || stream.Failures() != 0 {
		t.Errorf("Expected 3 frames 0 failures, got %d/%d", stream.Frames(), stream.Failures())
	}
}

func TestStream_RetriesUntilCancelled(t *testing.T) {
	source := failingSource{err: ErrNoFrame}
	stream := NewStream(source, staticEncoder{}, StreamOptions{Backoff: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	part, err := stream.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if part != nil {
		t.Error("Expected no part")
	}
	if stream.Frames() != 0 {
		t.Errorf("Expected 0 frames, got %d", stream.Frames())
	}
	if stream.Failures() < 3 {
		t.Errorf("Expected repeated retries, got %d", stream.Failures())
	}
}

func TestStream_RecoversAfterSwitch(t *testing.T) {
	ctx := context.Background()
	selector, opencv, _ := newTestSelector(SourceTypeOpenCV)
	if err := selector.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	opencv.SetReadError(ErrNoFrame)

	stream := NewStream(selector, NewJPEGEncoder(), StreamOptions{Backoff: time.Millisecond})

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = selector.Switch(ctx, "libcamera")
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := stream.NextJPEG(waitCtx); err != nil {
		t.Fatalf("Expected stream to recover after switch, got %v", err)
	}
	if stream.Failures() == 0 {
		t.Error("Expected failures before switch")
	}
}

func TestStream_EmptyEncodeIsFailure(t *testing.T) {
	selector, _, _ := newTestSelector(SourceTypeOpenCV)
	if err := selector.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	stream := NewStream(selector, staticEncoder{}, StreamOptions{Backoff: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := stream.NextJPEG(ctx); err == nil {
		t.Fatal("Expected error for empty encode output")
	}
	if stream.Frames() != 0 {
		t.Errorf("Expected 0 frames, got %d", stream.Frames())
	}
}

func TestCapture(t *testing.T) {
	ctx := context.Background()

	if _, err := Capture(ctx, failingSource{err: ErrNoActiveSource}, NewJPEGEncoder(), DefaultQuality); !errors.Is(err, ErrNoActiveSource) {
		t.Errorf("Expected ErrNoActiveSource, got %v", err)
	}

	selector, _, _ := newTestSelector(SourceTypeOpenCV)
	if err := selector.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	data, err := Capture(ctx, selector, NewJPEGEncoder(), DefaultQuality)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected JPEG data")
	}
}
