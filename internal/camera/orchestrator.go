package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"utsushi/internal/config"
	"utsushi/internal/logbook"
	"utsushi/internal/metrics"
)

// filenameTimestampFormat は撮影ファイル名に埋め込むタイムスタンプの書式
const filenameTimestampFormat = "2006-01-02_15-04-05"

// unsafeFilenameChars はリクエストIDのうちファイル名に使えない文字
var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Orchestrator は1回の撮影をデバイス経由で駆動し、
// 有界の同期待機として呼び出し側へ公開する
type Orchestrator struct {
	photoDir     string
	prefix       string
	timeout      time.Duration
	pollInterval time.Duration
	device       Device
	foreground   Foregrounder
	log          *logbook.Log

	// 撮影の直列化用（物理カメラは1台のみ）
	mu sync.Mutex
}

// NewOrchestrator は新しいOrchestratorを作成する
func NewOrchestrator(cfg *config.Config, device Device, foreground Foregrounder, log *logbook.Log) *Orchestrator {
	return &Orchestrator{
		photoDir:     cfg.Photo.ResolvedDir,
		prefix:       cfg.Photo.FilePrefix,
		timeout:      cfg.CaptureTimeout(),
		pollInterval: cfg.Capture.PollInterval,
		device:       device,
		foreground:   foreground,
		log:          log,
	}
}

// CaptureSync は設定されたタイムアウトで1回の撮影を実行する
func (o *Orchestrator) CaptureSync(ctx context.Context, id string) Result {
	return o.CaptureSyncWithTimeout(ctx, id, o.timeout)
}

// CaptureSyncWithTimeout は1回の撮影を実行し、完了・失敗・タイムアウトの
// いずれかへ必ず解決する。エラーをこの境界の外へ伝播させることはない。
// 撮影は直列化され、実行中に届いた次のリクエストは前の解決を待つ。
func (o *Orchestrator) CaptureSyncWithTimeout(ctx context.Context, id string, timeout time.Duration) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	if timeout <= 0 {
		timeout = o.timeout
	}

	metrics.CapturesRequested.Inc()

	// セッションIDでログ行を紐付ける
	session := uuid.New().String()[:8]
	target := o.BuildFilename(id)
	o.log.AddLine(fmt.Sprintf("[%s] 撮影を開始します: id=%s, target=%s, timeout=%s", session, id, target, timeout))

	// 写真フォルダを用意する
	if err := os.MkdirAll(o.photoDir, 0755); err != nil {
		o.log.AddLine(fmt.Sprintf("[%s] 写真フォルダの作成に失敗: %v", session, err))
		return Result{
			Success:      false,
			FilePath:     target,
			ErrorMessage: fmt.Sprintf("写真フォルダの作成に失敗: %v", err),
		}
	}

	// 同じパスの古いファイルを削除する（ベストエフォート）
	if err := os.Remove(target); err == nil {
		o.log.AddLine(fmt.Sprintf("[%s] 既存の同名ファイルを削除しました", session))
	}

	// 撮影画面の前面化（失敗しても撮影は続行する）
	o.foreground.PushToForeground(ctx)

	// デバイスへ非同期に撮影を指示する
	// 完了はターゲットファイルが非空になることでのみ観測される
	o.device.StartCapture(ctx, target)

	if o.waitForFile(ctx, session, target, timeout) {
		info, err := os.Stat(target)
		if err != nil {
			// 出現直後に外部から削除された場合のみ到達する
			o.log.AddLine(fmt.Sprintf("[%s] 撮影ファイルの確認に失敗: %v", session, err))
			metrics.CapturesTimedOut.Inc()
			return Result{Success: false, FilePath: target, ErrorMessage: TimeoutMessage}
		}

		o.log.AddLine(fmt.Sprintf("[%s] 撮影が完了しました: %s (%d bytes)", session, target, info.Size()))
		metrics.CapturesSucceeded.Inc()
		return Result{
			Success:       true,
			FilePath:      target,
			FileSizeBytes: info.Size(),
		}
	}

	o.log.AddLine(fmt.Sprintf("[%s] 撮影ファイルの出現待ちがタイムアウトしました", session))
	metrics.CapturesTimedOut.Inc()
	return Result{
		Success:      false,
		FilePath:     target,
		ErrorMessage: TimeoutMessage,
	}
}

// BuildFilename はリクエストIDと現在時刻から保存先パスを決定的に生成する
// 形式: <prefix>_<YYYY-MM-DD_HH-MM-SS>_<id>.jpg
func (o *Orchestrator) BuildFilename(id string) string {
	ts := time.Now().Format(filenameTimestampFormat)
	safe := unsafeFilenameChars.ReplaceAllString(id, "_")
	return filepath.Join(o.photoDir, fmt.Sprintf("%s_%s_%s.jpg", o.prefix, ts, safe))
}

// waitForFile はターゲットファイルが非空になるまで待機する
// フォルダ監視イベントで即座に確認し、一定間隔のポーリングを保険とする。
// 待機時間は timeout + ポーリング1回分を超えない。
func (o *Orchestrator) waitForFile(ctx context.Context, session, target string, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// フォルダ監視は高速化のための補助で、失敗してもポーリングで継続できる
	var events chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer func() {
			_ = watcher.Close()
		}()
		if werr := watcher.Add(o.photoDir); werr != nil {
			o.log.AddLine(fmt.Sprintf("[%s] フォルダ監視の開始に失敗（ポーリングのみで継続）: %v", session, werr))
		} else {
			events = watcher.Events
		}
	}

	appeared := func() bool {
		info, err := os.Stat(target)
		return err == nil && info.Size() > 0
	}

	// 撮影が極端に速い場合
	if appeared() {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return appeared()
		case <-deadline.C:
			// 期限ちょうどに完了していた場合を拾う
			return appeared()
		case <-ticker.C:
			if appeared() {
				return true
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Name == target && appeared() {
				return true
			}
		}
	}
}
