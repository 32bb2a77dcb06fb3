// Package camera キャプチャソースの抽象化と切り替え、ストリーム生成を担う
//
// # 責務
// - 2種類のキャプチャバックエンド（opencv / libcamera）の共通インターフェース定義
// - アクティブなバックエンドの初期化・フォールバック・切り替え・終了
// - 生フレームのJPEGエンコード
// - multipart/x-mixed-replace 形式のストリーム生成
// - V4L2デバイスの検出
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 単一の共有カメラから複数のHTTPリクエストへフレームを供給したい
// - 実行時にキャプチャ方式を切り替えたい
// - バックエンドの違いを意識せずにBGR順のフレームを扱いたい
//
// # 仕様
// - Selector: アクティブなバックエンド参照を RWMutex で保護する
//   （フレーム取得は読み取りロック、初期化・切り替え・終了は書き込みロック）
// - libcamera の初期化に失敗した場合のみ opencv へフォールバックする
// - 切り替えに失敗した場合は元のバックエンドへ戻さない
// - Stream: 取得・エンコード失敗時は一定間隔待機して無限に再試行する
// - 具体的なバックエンド実装は opencv / libcamera サブパッケージにある
package camera
