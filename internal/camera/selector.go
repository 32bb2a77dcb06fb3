package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State はアクティブなバックエンド参照の状態を表す
type State string

const (
	StateUninitialized State = "uninitialized" // バックエンドなし（unhealthy）
	StateActive        State = "active"        // バックエンドが動作中
)

// Status はSelectorの状態スナップショット
type Status struct {
	State            State
	Source           SourceType // 最後に要求された種別
	ConfiguredSource SourceType // 起動時に設定された種別
	Active           SourceType // 動作中の種別
	Device           string     // 動作中のデバイス識別子
	SessionID        string
	OpenedAt         time.Time // 動作中でなければゼロ値
	FellBack         bool      // フォールバックで opencv になったか
	Working          bool      // フレーム取得可能な状態か
	Unavailable      map[SourceType]string
}

// Label は外部へ報告するカメラソース名を返す
// 動作中であれば実際の種別、そうでなければ最後に要求された種別
func (s Status) Label() SourceType {
	if s.Working {
		return s.Active
	}
	return s.Source
}

// Selector はアクティブなバックエンド参照を所有し、
// 初期化・フォールバック・切り替え・終了を仲介する
type Selector struct {
	factory *SourceFactory
	config  Config
	logger  *zap.Logger

	mu          sync.RWMutex
	active      Backend
	source      SourceType
	sessionID   string
	openedAt    time.Time
	fellBack    bool
	unavailable map[SourceType]error
}

// NewSelector は新しいSelectorを作成する
func NewSelector(cfg Config, factory *SourceFactory, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		factory:     factory,
		config:      cfg,
		logger:      logger,
		source:      cfg.Source,
		unavailable: make(map[SourceType]error),
	}
}

// Config は起動時に解決された設定を返す
func (s *Selector) Config() Config {
	return s.config
}

// Initialize は設定されたバックエンドをオープンする
// libcamera の失敗時のみ opencv へフォールバックする。両方失敗した場合はバックエンドなしのまま
func (s *Selector) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	s.source = s.config.Source
	s.fellBack = false

	s.logger.Info("カメラを初期化します", zap.String("source", s.config.Source.String()))

	err := s.openLocked(ctx, s.config.Source)
	if err == nil {
		return nil
	}
	s.logger.Error("カメラの初期化に失敗しました",
		zap.String("source", s.config.Source.String()), zap.Error(err))

	if s.config.Source != SourceTypeLibcamera {
		return err
	}

	s.logger.Warn("libcamera の初期化に失敗したため opencv へフォールバックします")
	if fbErr := s.openLocked(ctx, SourceTypeOpenCV); fbErr != nil {
		s.logger.Error("カメラソースを初期化できませんでした", zap.Error(fbErr))
		return errors.Join(err, fbErr)
	}
	s.fellBack = true
	return nil
}

// RetrieveFrame はアクティブなバックエンドから1フレームを取得する
// バックエンドがない場合は ErrNoActiveSource を返す
func (s *Selector) RetrieveFrame(ctx context.Context) (*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return nil, ErrNoActiveSource
	}

	frame, err := s.active.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame, nil
}

// Switch は要求された種別へ切り替える
// 無効な種別の場合は状態を変更せずにエラーを返す。
// 現在のハンドルを閉じてから新しい種別をオープンし、失敗した場合は元に戻さない
func (s *Selector) Switch(ctx context.Context, requested string) (SourceType, error) {
	sourceType, err := ParseSourceType(requested)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	s.source = sourceType
	s.fellBack = false

	if err := s.openLocked(ctx, sourceType); err != nil {
		s.logger.Error("カメラの切り替えに失敗しました",
			zap.String("source", sourceType.String()), zap.Error(err))
		return sourceType, err
	}

	s.logger.Info("カメラを切り替えました", zap.String("source", sourceType.String()))
	return sourceType, nil
}

// Shutdown はアクティブなハンドルを閉じて参照をクリアする
// 一度もオープンしていない場合や二重呼び出しでも安全
func (s *Selector) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeLocked()
}

// Status は現在の状態を返す
func (s *Selector) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		State:            StateUninitialized,
		Source:           s.source,
		ConfiguredSource: s.config.Source,
		FellBack:         s.fellBack,
	}

	if s.active != nil {
		status.State = StateActive
		status.Active = s.active.Type()
		status.Device = s.config.DeviceFor(status.Active)
		status.SessionID = s.sessionID
		status.OpenedAt = s.openedAt
		status.Working = s.active.IsOpened()
	}

	if len(s.unavailable) > 0 {
		status.Unavailable = make(map[SourceType]string, len(s.unavailable))
		for t, err := range s.unavailable {
			status.Unavailable[t] = err.Error()
		}
	}

	return status
}

// openLocked は指定された種別をオープンしてアクティブにする（ロック済み前提）
func (s *Selector) openLocked(ctx context.Context, sourceType SourceType) error {
	if err, ok := s.unavailable[sourceType]; ok {
		return err
	}

	backend, err := s.factory.Open(ctx, sourceType, s.config, s.logger.Named(sourceType.String()))
	if err != nil {
		if IsPermanent(err) {
			s.unavailable[sourceType] = err
		}
		return fmt.Errorf("%s のオープンに失敗: %w", sourceType, err)
	}

	s.active = backend
	s.sessionID = uuid.New().String()
	s.openedAt = time.Now()

	s.logger.Info("カメラをオープンしました",
		zap.String("source", sourceType.String()),
		zap.String("device", s.config.DeviceFor(sourceType)),
		zap.String("session_id", s.sessionID))
	return nil
}

// closeLocked はアクティブなハンドルを閉じる（ロック済み前提）
func (s *Selector) closeLocked() error {
	if s.active == nil {
		return nil
	}

	backend := s.active
	s.active = nil
	s.sessionID = ""
	s.openedAt = time.Time{}

	if err := backend.Close(); err != nil {
		s.logger.Warn("カメラのクローズに失敗しました",
			zap.String("source", backend.Type().String()), zap.Error(err))
		return fmt.Errorf("%s のクローズに失敗: %w", backend.Type(), err)
	}

	s.logger.Info("カメラを解放しました", zap.String("source", backend.Type().String()))
	return nil
}
