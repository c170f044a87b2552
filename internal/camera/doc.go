// Package camera は写真撮影の実行と調停を担う
//
// # 責務
// - 撮影デバイス（ffmpeg経由のV4L2、または代替画像）の抽象化
// - 撮影リクエストの直列化（カメラは物理的に1台のみ）
// - 非同期な撮影完了のファイル出現による観測
// - タイムアウト・失敗・成功の決定的な解決
// - 撮影画面の前面化（ベストエフォートの戦略チェーン）
//
// # 仕様
// - Device: StartCaptureは非同期で、完了はターゲットファイルが
//   非空になることでのみ観測される
// - Orchestrator: CaptureSyncは必ずResult値を返し、例外的な失敗を
//   境界の外へ伝播させない
// - デバイスの一時的なビジー状態は1回だけ短い待機の後に再試行し、
//   それでも失敗する場合は代替画像へフォールバックする
//
// # 前提要件
//   - ffmpeg: V4L2デバイスからの静止画キャプチャに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
