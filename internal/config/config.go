package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"camstream/internal/camera"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// エンコーダーの種類
const (
	EncoderOpenCV = "opencv" // gocv.IMEncode
	EncoderNative = "native" // image/jpeg
)

// DefaultEnvFile はデフォルトで読み込む dotenv ファイル
const DefaultEnvFile = "config.env"

// Config はアプリケーション全体の設定を保持する構造体
// 起動時に一度だけ読み込まれ、以降は変更されない
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Camera camera.Config `yaml:"camera"`
	Stream StreamConfig  `yaml:"stream"`
	Log    LogConfig     `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // グレースフルシャットダウンの待ち時間
}

// StreamConfig はストリーム配信の設定
type StreamConfig struct {
	Encoder string        `yaml:"encoder"` // opencv または native
	Backoff time.Duration `yaml:"backoff"` // 取得失敗時の待機時間
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0, // ストリーミング用にタイムアウト無効化
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: camera.DefaultConfig(),
		Stream: StreamConfig{
			Encoder: EncoderOpenCV,
			Backoff: camera.DefaultBackoff,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
// デフォルト値 → YAMLファイル (CONFIG_FILE) → dotenv (ENV_FILE) → 環境変数 の順に上書きする
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := loadEnvFile(getEnvOrDefault("ENV_FILE", DefaultEnvFile)); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルの内容で設定を上書きする
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	return nil
}

// loadEnvFile は dotenv ファイルを読み込む
// 既に設定されている環境変数は上書きしない。ファイルがなければ何もしない
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%s の読み込みに失敗: %w", path, err)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() error {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)

	if value := os.Getenv("CAMERA_SOURCE"); value != "" {
		source, err := camera.ParseSourceType(value)
		if err != nil {
			return fmt.Errorf("CAMERA_SOURCE: %w", err)
		}
		c.Camera.Source = source
	}
	c.Camera.OpenCVDevice = getEnvAsIntOrDefault("OPENCV_DEVICE", c.Camera.OpenCVDevice)
	c.Camera.LibcameraDevice = getEnvOrDefault("LIBCAMERA_DEVICE", c.Camera.LibcameraDevice)
	c.Camera.BufferCount = getEnvAsIntOrDefault("LIBCAMERA_BUFFER_COUNT", c.Camera.BufferCount)
	c.Camera.FrameRate = getEnvAsIntOrDefault("LIBCAMERA_FRAME_RATE", c.Camera.FrameRate)
	c.Camera.TuningFile = getEnvOrDefault("LIBCAMERA_TUNING_FILE", c.Camera.TuningFile)
	c.Camera.SettleDelay = getEnvAsDurationOrDefault("LIBCAMERA_SETTLE", c.Camera.SettleDelay)
	c.Camera.Width = getEnvAsIntOrDefault("CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = getEnvAsIntOrDefault("CAMERA_HEIGHT", c.Camera.Height)
	c.Camera.Quality = getEnvAsIntOrDefault("JPEG_QUALITY", c.Camera.Quality)

	c.Stream.Encoder = strings.ToLower(getEnvOrDefault("JPEG_ENCODER", c.Stream.Encoder))
	c.Stream.Backoff = getEnvAsDurationOrDefault("STREAM_BACKOFF", c.Stream.Backoff)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	if !c.Camera.Source.Valid() {
		return fmt.Errorf("%w: %q", camera.ErrInvalidSource, c.Camera.Source)
	}
	if c.Camera.OpenCVDevice < 0 {
		return fmt.Errorf("無効なデバイス番号: %d", c.Camera.OpenCVDevice)
	}
	if c.Camera.BufferCount <= 0 {
		return fmt.Errorf("無効なバッファ数: %d", c.Camera.BufferCount)
	}
	if c.Camera.FrameRate <= 0 {
		return fmt.Errorf("無効なフレームレート: %d", c.Camera.FrameRate)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("無効な画像サイズ: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.SettleDelay < 0 {
		return fmt.Errorf("無効な安定待ち時間: %s", c.Camera.SettleDelay)
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		return fmt.Errorf("無効なJPEG品質: %d (1-100)", c.Camera.Quality)
	}

	// ストリーム設定の検証
	switch c.Stream.Encoder {
	case EncoderOpenCV, EncoderNative:
	default:
		return fmt.Errorf("無効なエンコーダー: %q ('opencv' または 'native')", c.Stream.Encoder)
	}
	if c.Stream.Backoff < 0 {
		return fmt.Errorf("無効なバックオフ: %s", c.Stream.Backoff)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault は環境変数を時間として取得する
// "2s" のような形式に加えて、単位なしの数値は秒として扱う
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
