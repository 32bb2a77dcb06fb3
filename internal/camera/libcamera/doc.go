// Package libcamera はチューニング済みセンサー（Raspberry Pi カメラ）のバックエンドを提供する
//
// rpicam-vid（旧名 libcamera-vid）をサブプロセスとして起動し、
// 標準出力のMJPEGストリームからフレームを切り出す。
// センサーのネイティブな並びはRGBで、Read はBGRに並べ替えて返す。
// Read は未読のフレームを1回だけ返し、次のフレームが届くまで待機する。
//
// # 前提要件
//   - rpicam-apps（Bookworm 以降）または libcamera-apps
//     sudo apt install -y rpicam-apps
package libcamera
