package camera

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Opener はバックエンドをオープンする関数の型
// オープンに失敗したハンドルは返さない
type Opener func(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error)

// SourceFactory は種別ごとのオープン関数を保持する
type SourceFactory struct {
	openers map[SourceType]Opener
}

// NewSourceFactory は空のファクトリーを作成する
func NewSourceFactory() *SourceFactory {
	return &SourceFactory{
		openers: make(map[SourceType]Opener),
	}
}

// Register はオープン関数を登録する
func (f *SourceFactory) Register(sourceType SourceType, opener Opener) {
	f.openers[sourceType] = opener
}

// Open は指定された種別のバックエンドをオープンする
func (f *SourceFactory) Open(ctx context.Context, sourceType SourceType, cfg Config, logger *zap.Logger) (Backend, error) {
	opener, exists := f.openers[sourceType]
	if !exists {
		return nil, fmt.Errorf("%w: %s (登録されていません)", ErrLibraryUnavailable, sourceType)
	}

	backend, err := opener(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrOpenFailed, sourceType)
	}
	return backend, nil
}

// GetSupportedTypes は登録済みの種別を返す
func (f *SourceFactory) GetSupportedTypes() []SourceType {
	types := make([]SourceType, 0, len(f.openers))
	for sourceType := range f.openers {
		types = append(types, sourceType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
