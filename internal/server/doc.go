// Package server は撮影とファイル取得のHTTPエンドポイントを提供する
//
// # 責務
// - /capture: 1回の撮影を駆動し、完了・失敗・タイムアウトを応答で報告する
// - /get_file_chunk: 撮影ファイルの有界チャンク配信
// - /get_img: 画像の直接配信（代替画像へのフォールバック付き）
// - /get_log: 追記専用ログの差分取得
//
// # 仕様
// - 応答のmessageとlogはHTMLエスケープして返す
// - ハンドラ内の障害はパニックを含めて500 "Internal Server Error" に変換する
// - 未定義のパスは404を返す
package server
