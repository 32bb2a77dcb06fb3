package camera

import (
	"fmt"
	"strings"
	"time"
)

// SourceType はキャプチャバックエンドの種類を表す
type SourceType string

const (
	// SourceTypeOpenCV はデバイスを直接開くバックエンド
	SourceTypeOpenCV SourceType = "opencv"
	// SourceTypeLibcamera はチューニング済みセンサーのバックエンド
	SourceTypeLibcamera SourceType = "libcamera"
)

// SourceTypes は既知のバックエンド種別一覧を返す
func SourceTypes() []SourceType {
	return []SourceType{SourceTypeOpenCV, SourceTypeLibcamera}
}

// ParseSourceType は文字列をSourceTypeに変換する
// 大文字小文字と前後の空白は無視する
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q ('opencv' または 'libcamera' を指定してください)", ErrInvalidSource, s)
	}
	return t, nil
}

// Valid は既知の種別かどうかを返す
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeOpenCV, SourceTypeLibcamera:
		return true
	default:
		return false
	}
}

func (t SourceType) String() string {
	return string(t)
}

// Config はキャプチャ関連の設定
// プロセス起動時に一度だけ解決され、以降は変更されない
type Config struct {
	Source          SourceType    `yaml:"source"`           // 設定されたバックエンド種別
	OpenCVDevice    int           `yaml:"opencv_device"`    // opencv のデバイス番号
	LibcameraDevice string        `yaml:"libcamera_device"` // libcamera のデバイスパス
	BufferCount     int           `yaml:"buffer_count"`     // libcamera のバッファ数
	FrameRate       int           `yaml:"frame_rate"`       // 目標フレームレート
	Width           int           `yaml:"width"`            // 画像幅
	Height          int           `yaml:"height"`           // 画像高さ
	TuningFile      string        `yaml:"tuning_file"`      // libcamera のチューニングファイル
	SettleDelay     time.Duration `yaml:"settle_delay"`     // libcamera 起動後の安定待ち
	Quality         int           `yaml:"quality"`          // JPEG品質 (1-100)
}

// DefaultConfig はデフォルトのキャプチャ設定を返す
func DefaultConfig() Config {
	return Config{
		Source:          SourceTypeOpenCV,
		OpenCVDevice:    0,
		LibcameraDevice: "/dev/video0",
		BufferCount:     6,
		FrameRate:       30,
		Width:           640,
		Height:          480,
		SettleDelay:     2 * time.Second,
		Quality:         80,
	}
}

// DeviceFor は指定された種別で使用するデバイス識別子を返す
func (c Config) DeviceFor(t SourceType) string {
	switch t {
	case SourceTypeOpenCV:
		return fmt.Sprintf("%d", c.OpenCVDevice)
	case SourceTypeLibcamera:
		return c.LibcameraDevice
	default:
		return ""
	}
}
