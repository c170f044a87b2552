package camera

import "context"

// TimeoutMessage は期限内に写真ファイルが出現しなかった場合の失敗理由
const TimeoutMessage = "撮影画面に到達できません: 期限内に写真ファイルが作成されませんでした"

// Result は1回の撮影の最終結果
// 成功・失敗・タイムアウトのいずれでも必ずこの値に解決される
type Result struct {
	Success       bool   // 写真ファイルの生成を確認できたか
	FilePath      string // 生成された（または生成されるはずだった）ファイルパス
	FileSizeBytes int64  // ファイルサイズ（失敗時は0）
	ErrorMessage  string // 失敗理由（成功時は空文字列）
}

// Device は写真を非同期に撮影するデバイス
// StartCaptureは即座に戻り、完了はターゲットファイルが非空になる
// ことでのみ観測される（コールバックのスレッドに依存しないため）
type Device interface {
	// StartCapture はターゲットパスへの撮影を開始する
	StartCapture(ctx context.Context, targetPath string)

	// Available はデバイスが利用可能かチェックする
	Available(ctx context.Context) bool

	// Name はデバイスの表示名を返す
	Name() string
}
