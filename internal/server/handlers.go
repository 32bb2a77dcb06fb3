package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"camstream/internal/camera"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// IndexResponse はサービス概要のレスポンス
type IndexResponse struct {
	Message         string            `json:"message"`
	CameraSource    camera.SourceType `json:"camera_source"`
	OpenCVDevice    *int              `json:"opencv_device"`
	LibcameraDevice *string           `json:"libcamera_device"`
	Status          string            `json:"status"`
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status           string            `json:"status"`
	CameraSource     camera.SourceType `json:"camera_source"`
	CameraWorking    bool              `json:"camera_working"`
	ConfiguredSource camera.SourceType `json:"configured_source"`
	FellBack         bool              `json:"fell_back"`
}

// CameraInfoResponse は設定とバックエンドの状態のスナップショット
type CameraInfoResponse struct {
	CameraSource         camera.SourceType            `json:"camera_source"`
	ConfiguredSource     camera.SourceType            `json:"configured_source"`
	State                camera.State                 `json:"state"`
	SessionID            string                       `json:"session_id,omitempty"`
	OpenedAt             *time.Time                   `json:"opened_at,omitempty"`
	FellBack             bool                         `json:"fell_back"`
	OpenCVDevice         int                          `json:"opencv_device"`
	LibcameraDevice      string                       `json:"libcamera_device"`
	LibcameraBufferCount int                          `json:"libcamera_buffer_count"`
	LibcameraFrameRate   int                          `json:"libcamera_frame_rate"`
	Width                int                          `json:"width"`
	Height               int                          `json:"height"`
	JPEGQuality          int                          `json:"jpeg_quality"`
	OpenCVAvailable      bool                         `json:"opencv_available"`
	LibcameraAvailable   bool                         `json:"libcamera_available"`
	SupportedSources     []camera.SourceType          `json:"supported_sources"`
	Devices              []camera.Device              `json:"devices"`
	Unavailable          map[camera.SourceType]string `json:"unavailable,omitempty"`
}

// SwitchResponse はカメラ切り替えのレスポンス
type SwitchResponse struct {
	Message      string            `json:"message"`
	Success      bool              `json:"success"`
	CameraSource camera.SourceType `json:"camera_source"`
	Error        string            `json:"error,omitempty"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func healthLabel(working bool) string {
	if working {
		return "healthy"
	}
	return "unhealthy"
}

// handleIndex はサービス概要を返す
func (s *Server) handleIndex(c *gin.Context) {
	status := s.selector.Status()
	cfg := s.selector.Config()
	label := status.Label()

	response := IndexResponse{
		Message:      "Camera streaming server is running.",
		CameraSource: label,
		Status:       healthLabel(status.Working),
	}

	// 報告中の種別のデバイスのみ返す
	switch label {
	case camera.SourceTypeOpenCV:
		device := cfg.OpenCVDevice
		response.OpenCVDevice = &device
	case camera.SourceTypeLibcamera:
		device := cfg.LibcameraDevice
		response.LibcameraDevice = &device
	}

	c.JSON(http.StatusOK, response)
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	status := s.selector.Status()

	c.JSON(http.StatusOK, HealthResponse{
		Status:           healthLabel(status.Working),
		CameraSource:     status.Label(),
		CameraWorking:    status.Working,
		ConfiguredSource: status.ConfiguredSource,
		FellBack:         status.FellBack,
	})
}

// handleCameraInfo は設定とバックエンドの状態を返す
func (s *Server) handleCameraInfo(c *gin.Context) {
	status := s.selector.Status()
	cfg := s.selector.Config()

	devices, err := s.discovery.ScanDevices(c.Request.Context())
	if err != nil {
		s.logger.Warn("デバイスの検出に失敗しました", zap.Error(err))
	}
	if devices == nil {
		devices = []camera.Device{}
	}

	var openedAt *time.Time
	if !status.OpenedAt.IsZero() {
		openedAt = &status.OpenedAt
	}

	c.JSON(http.StatusOK, CameraInfoResponse{
		CameraSource:         status.Label(),
		ConfiguredSource:     status.ConfiguredSource,
		State:                status.State,
		SessionID:            status.SessionID,
		OpenedAt:             openedAt,
		FellBack:             status.FellBack,
		OpenCVDevice:         cfg.OpenCVDevice,
		LibcameraDevice:      cfg.LibcameraDevice,
		LibcameraBufferCount: cfg.BufferCount,
		LibcameraFrameRate:   cfg.FrameRate,
		Width:                cfg.Width,
		Height:               cfg.Height,
		JPEGQuality:          cfg.Quality,
		OpenCVAvailable:      status.Working && status.Active == camera.SourceTypeOpenCV,
		LibcameraAvailable:   status.Working && status.Active == camera.SourceTypeLibcamera,
		SupportedSources:     camera.SourceTypes(),
		Devices:              devices,
		Unavailable:          status.Unavailable,
	})
}

// handleTestFrame は1フレームだけ取得してJPEGで返す
// 失敗時もステータスは200で success: false を返す
func (s *Server) handleTestFrame(c *gin.Context) {
	data, err := camera.Capture(c.Request.Context(), s.selector, s.encoder, s.selector.Config().Quality)
	if err != nil {
		c.JSON(http.StatusOK, ErrorResponse{
			Success: false,
			Error:   testFrameError(err),
		})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func testFrameError(err error) string {
	switch {
	case errors.Is(err, camera.ErrEncode):
		return fmt.Sprintf("Failed to encode frame: %v", err)
	default:
		return fmt.Sprintf("Failed to capture frame: %v", err)
	}
}

// handleSwitchCamera はカメラを切り替える
// 不正なsourceの場合は状態を変更せずに400を返す
func (s *Server) handleSwitchCamera(c *gin.Context) {
	requested := c.Query("source")
	if _, err := camera.ParseSourceType(requested); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid camera source. Use 'opencv' or 'libcamera'",
		})
		return
	}

	source, err := s.selector.Switch(c.Request.Context(), requested)
	response := SwitchResponse{
		Message:      fmt.Sprintf("Switched to %s camera", source),
		Success:      err == nil,
		CameraSource: source,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(http.StatusOK, response)
}

// handleVideoFeed はMJPEGストリームを配信する
// クライアントが切断されるまでフレームを送り続ける
func (s *Server) handleVideoFeed(c *gin.Context) {
	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// レスポンスヘッダーを設定
	c.Header("Content-Type", camera.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)
	writer.WriteHeaderNow()
	flusher.Flush()

	stream := s.newStream()
	logger := s.logger.With(zap.String("stream_id", stream.ID()))
	logger.Info("ストリームを開始しました", zap.String("client_ip", c.ClientIP()))

	// クライアント切断でコンテキストが終了する
	ctx := c.Request.Context()
	for {
		data, err := stream.NextJPEG(ctx)
		if err != nil {
			break
		}

		if err := camera.WritePart(writer, data); err != nil {
			break
		}

		// バッファをフラッシュ
		flusher.Flush()
	}

	logger.Info("ストリームを終了しました",
		zap.Int64("frames", stream.Frames()),
		zap.Int64("failures", stream.Failures()))
}

// handleWebSocket はWebSocketでJPEGフレームを配信する
// 1メッセージが1フレームのバイナリメッセージ
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocketのアップグレードに失敗しました", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// クライアントからの切断を検知する
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stream := s.newStream()
	logger := s.logger.With(zap.String("stream_id", stream.ID()))
	logger.Info("WebSocketストリームを開始しました", zap.String("client_ip", c.ClientIP()))

	for {
		data, err := stream.NextJPEG(ctx)
		if err != nil {
			break
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			break
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	logger.Info("WebSocketストリームを終了しました",
		zap.Int64("frames", stream.Frames()),
		zap.Int64("failures", stream.Failures()))
}

// newStream は視聴者ごとのフレーム生成器を作成する
func (s *Server) newStream() *camera.Stream {
	return camera.NewStream(s.selector, s.encoder, camera.StreamOptions{
		Quality: s.selector.Config().Quality,
		Backoff: s.config.Stream.Backoff,
		Logger:  s.logger.Named("stream"),
	})
}
