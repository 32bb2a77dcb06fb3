package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Device は検出されたV4L2デバイスの情報
type Device struct {
	Path    string   `json:"path"`              // デバイスパス（例: /dev/video0）
	Index   int      `json:"index"`             // opencv で使用するデバイス番号
	Name    string   `json:"name"`              // カード名
	Driver  string   `json:"driver,omitempty"`  // ドライバー名
	Formats []string `json:"formats,omitempty"` // サポートされるピクセルフォーマット
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内のビデオデバイスを列挙する
	ScanDevices(ctx context.Context) ([]Device, error)
}

var (
	deviceNumberPattern = regexp.MustCompile(`video(\d+)$`)
	formatPattern       = regexp.MustCompile(`'([A-Z0-9 ]{4})'`)
)

// LinuxDiscovery は /dev/video* と v4l2-ctl を使った検出の実装
type LinuxDiscovery struct {
	pattern string
	timeout time.Duration
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{
		pattern: "/dev/video*",
		timeout: 3 * time.Second,
	}
}

// ScanDevices はシステム内のビデオデバイスを列挙する
// v4l2-ctl がない環境ではパスと番号のみを返す
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]Device, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	devices := make([]Device, 0, len(matches))
	for _, path := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		index, ok := DeviceIndex(path)
		if !ok || !isReadable(path) {
			continue
		}

		device := Device{
			Path:  path,
			Index: index,
			Name:  fmt.Sprintf("カメラ %d", index),
		}
		d.describe(ctx, &device)
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Index < devices[j].Index
	})
	return devices, nil
}

// describe は v4l2-ctl でカード名・ドライバー・フォーマットを補完する
func (d *LinuxDiscovery) describe(ctx context.Context, device *Device) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device.Path, "--info").Output(); err == nil {
		info := parseV4L2Info(string(output))
		if name := info["Card type"]; name != "" {
			device.Name = name
		}
		device.Driver = info["Driver name"]
	}

	if output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device.Path, "--list-formats").Output(); err == nil {
		device.Formats = parseV4L2Formats(string(output))
	}
}

// DeviceIndex はデバイスパスから番号を抽出する
func DeviceIndex(path string) (int, bool) {
	matches := deviceNumberPattern.FindStringSubmatch(path)
	if len(matches) < 2 {
		return 0, false
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}
	return num, true
}

// parseV4L2Info は "Key : Value" 形式の出力をマップに変換する
func parseV4L2Info(output string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if _, exists := info[key]; !exists {
			info[key] = strings.TrimSpace(value)
		}
	}
	return info
}

// parseV4L2Formats は --list-formats の出力からフォーマット名を抽出する
func parseV4L2Formats(output string) []string {
	var formats []string
	seen := make(map[string]bool)
	for _, m := range formatPattern.FindAllStringSubmatch(output, -1) {
		format := strings.TrimSpace(m[1])
		if format != "" && !seen[format] {
			seen[format] = true
			formats = append(formats, format)
		}
	}
	return formats
}

func isReadable(path string) bool {
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices []Device
	err     error
}

// NewMockDiscovery はパス一覧からMockDiscoveryを作成する
func NewMockDiscovery(paths ...string) *MockDiscovery {
	devices := make([]Device, 0, len(paths))
	for i, path := range paths {
		index, ok := DeviceIndex(path)
		if !ok {
			index = i
		}
		devices = append(devices, Device{
			Path:    path,
			Index:   index,
			Name:    fmt.Sprintf("テストカメラ %d", i+1),
			Driver:  "mock",
			Formats: []string{"MJPG", "YUYV"},
		})
	}
	return &MockDiscovery{devices: devices}
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]Device, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]Device(nil), m.devices...), nil
}

// SetError はScanDevicesが返すエラーを設定する
func (m *MockDiscovery) SetError(err error) {
	m.err = err
}
