// Package server は、カメラ映像を配信するHTTPサーバーを管理します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - カメラの初期化と解放をプロセスのライフサイクルに結びつける
//   - MJPEGストリーム（multipart/x-mixed-replace）の配信
//   - WebSocketによるJPEGフレームの配信
//   - カメラの状態確認と切り替えのエンドポイント
//
// 仕様:
//   - ルーティングには gin を使用
//   - WebSocketは gorilla/websocket を使用
//   - 視聴者ごとに独立した camera.Stream を作成し、共有の camera.Selector から取得する
//   - ストリームはクライアントの切断で終了する
package server
