package camera

import "errors"

var (
	// ErrLibraryUnavailable はバックエンドのサポートライブラリが存在しないことを表す
	// このプロセスの間は再試行しない
	ErrLibraryUnavailable = errors.New("サポートライブラリが利用できません")

	// ErrOpenFailed はデバイスのオープンに失敗したことを表す
	ErrOpenFailed = errors.New("デバイスのオープンに失敗")

	// ErrNoFrame はフレームが取得できなかったことを表す
	ErrNoFrame = errors.New("フレームが取得できません")

	// ErrEmptyFrame はサイズ0のフレームを表す
	ErrEmptyFrame = errors.New("空のフレーム")

	// ErrEncode はエンコードの失敗を表す
	ErrEncode = errors.New("フレームのエンコードに失敗")

	// ErrInvalidSource は未知のバックエンド種別を表す
	ErrInvalidSource = errors.New("無効なカメラソース")

	// ErrNoActiveSource はアクティブなバックエンドが存在しないことを表す
	ErrNoActiveSource = errors.New("アクティブなカメラがありません")
)

// IsPermanent は再試行しても回復しないエラーかどうかを返す
func IsPermanent(err error) bool {
	return errors.Is(err, ErrLibraryUnavailable)
}
