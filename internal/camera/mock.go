package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MockBackend はテスト用のバックエンド実装
type MockBackend struct {
	sourceType SourceType
	opener     *MockOpener

	mu     sync.Mutex
	closed bool
	reads  int
}

// Type はバックエンドの種別を返す
func (m *MockBackend) Type() SourceType {
	return m.sourceType
}

// Read はモックフレームを返す
func (m *MockBackend) Read(_ context.Context) (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	m.opener.reads.Add(1)

	if m.closed {
		return nil, fmt.Errorf("%w: クローズ済み", ErrNoFrame)
	}
	if err := m.opener.readError(); err != nil {
		return nil, err
	}
	return m.opener.frame(), nil
}

// Close はモックデバイスを解放する
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.opener.closes.Add(1)
	m.opener.live.Add(-1)
	return nil
}

// IsOpened はクローズされていなければ true を返す
func (m *MockBackend) IsOpened() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Reads はこのハンドルへの読み取り回数を返す
func (m *MockBackend) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// MockOpener はテスト用のオープン関数を提供する
type MockOpener struct {
	sourceType SourceType

	mu        sync.Mutex
	openErr   error
	readErr   error
	mockFrame *Frame
	backends  []*MockBackend

	opens  atomic.Int64
	closes atomic.Int64
	reads  atomic.Int64
	live   atomic.Int64
}

// NewMockOpener は新しいMockOpenerを作成する
func NewMockOpener(sourceType SourceType) *MockOpener {
	return &MockOpener{
		sourceType: sourceType,
		mockFrame:  NewTestFrame(4, 4, OrderBGR),
	}
}

// Open はSourceFactoryに登録するオープン関数
func (m *MockOpener) Open(_ context.Context, _ Config, _ *zap.Logger) (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opens.Add(1)
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.live.Load() > 0 {
		return nil, fmt.Errorf("%w: %s は既にオープンされています", ErrOpenFailed, m.sourceType)
	}

	backend := &MockBackend{sourceType: m.sourceType, opener: m}
	m.backends = append(m.backends, backend)
	m.live.Add(1)
	return backend, nil
}

// SetOpenError はOpenが返すエラーを設定する（nil で成功）
func (m *MockOpener) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetReadError はReadが返すエラーを設定する（nil で成功）
func (m *MockOpener) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetFrame はReadが返すフレームを設定する
func (m *MockOpener) SetFrame(frame *Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mockFrame = frame
}

// Opens はOpenの呼び出し回数を返す
func (m *MockOpener) Opens() int64 { return m.opens.Load() }

// Closes はハンドルがクローズされた回数を返す
func (m *MockOpener) Closes() int64 { return m.closes.Load() }

// Reads は全ハンドルへの読み取り回数を返す
func (m *MockOpener) Reads() int64 { return m.reads.Load() }

// Live は現在オープン中のハンドル数を返す
func (m *MockOpener) Live() int64 { return m.live.Load() }

// Backends はこれまでに作成したハンドルを返す
func (m *MockOpener) Backends() []*MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockBackend(nil), m.backends...)
}

func (m *MockOpener) readError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readErr
}

func (m *MockOpener) frame() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mockFrame
}

// NewMockSourceFactory は opencv と libcamera のモックを登録したファクトリーを返す
func NewMockSourceFactory() (*SourceFactory, *MockOpener, *MockOpener) {
	opencv := NewMockOpener(SourceTypeOpenCV)
	libcamera := NewMockOpener(SourceTypeLibcamera)

	factory := NewSourceFactory()
	factory.Register(SourceTypeOpenCV, opencv.Open)
	factory.Register(SourceTypeLibcamera, libcamera.Open)
	return factory, opencv, libcamera
}

// NewTestFrame はグラデーションのテスト用フレームを作成する
func NewTestFrame(width, height int, order ChannelOrder) *Frame {
	pix := make([]byte, width*height*3)
	for i := 0; i < width*height; i++ {
		pix[i*3] = byte(i * 7)
		pix[i*3+1] = byte(i * 13)
		pix[i*3+2] = byte(i * 29)
	}
	return &Frame{
		Width:      width,
		Height:     height,
		Channels:   3,
		Order:      order,
		Pix:        pix,
		CapturedAt: time.Now(),
	}
}
