// Package opencv は gocv を使ってデバイスを直接開くバックエンドを提供する
//
// # 前提要件
//   - OpenCV 4.x と gocv のビルド環境
//     https://gocv.io/getting-started/linux/
package opencv
