package camera

import "context"

// Backend はオープン済みのキャプチャデバイスを表す
// 1つの種別につき同時に存在するハンドルは1つだけである
type Backend interface {
	// Type はバックエンドの種別を返す
	Type() SourceType

	// Read は1フレームを取得する
	// 失敗時はパニックせずエラーを返す。返すフレームは常にBGR順
	Read(ctx context.Context) (*Frame, error)

	// Close はデバイスを解放する。二重に呼び出しても安全
	Close() error

	// IsOpened はデバイスが利用可能な状態かを返す
	IsOpened() bool
}
