package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"utsushi/internal/logbook"
)

// busyRetryBackoff はデバイスビジー時の再試行前の待機時間
const busyRetryBackoff = 500 * time.Millisecond

// FFmpegDevice はffmpeg経由でV4L2デバイスから静止画を撮影するデバイス
type FFmpegDevice struct {
	devicePath  string
	width       int
	height      int
	placeholder *PlaceholderWriter
	log         *logbook.Log
}

// NewFFmpegDevice は新しいFFmpegDeviceを作成する
func NewFFmpegDevice(devicePath string, width, height int, placeholder *PlaceholderWriter, log *logbook.Log) *FFmpegDevice {
	return &FFmpegDevice{
		devicePath:  devicePath,
		width:       width,
		height:      height,
		placeholder: placeholder,
		log:         log,
	}
}

// Name はデバイスの表示名を返す
func (d *FFmpegDevice) Name() string {
	return fmt.Sprintf("ffmpeg (%s)", d.devicePath)
}

// Available はV4L2デバイスが利用可能かチェックする
func (d *FFmpegDevice) Available(_ context.Context) bool {
	// デバイスファイルの存在確認
	if _, err := os.Stat(d.devicePath); err != nil {
		return false
	}

	// /dev/videoXX パターンかチェック
	matched, _ := regexp.MatchString(`^/dev/video\d+$`, d.devicePath)
	return matched
}

// StartCapture はターゲットパスへの撮影を非同期に開始する
// 失敗時は再試行・代替画像フォールバックを経て、いずれかのファイルが
// 必ず書かれるか、何も書かれないまま呼び出し側のタイムアウトに到達する
func (d *FFmpegDevice) StartCapture(ctx context.Context, targetPath string) {
	d.log.AddLine(fmt.Sprintf("撮影コマンドを開始します: device=%s, target=%s", d.devicePath, targetPath))

	go d.capture(ctx, targetPath)
}

// capture は撮影の試行・再試行・フォールバックを実行する
// 状態遷移: 試行 → 成功 / (ビジーなら1回だけ再試行) → 成功 / 代替画像
func (d *FFmpegDevice) capture(ctx context.Context, targetPath string) {
	err := d.captureOnce(ctx, targetPath)
	if err == nil {
		d.log.AddLine(fmt.Sprintf("撮影コマンドが完了しました: %s", targetPath))
		return
	}

	// デバイスビジーは一時的な失敗として1回だけ再試行する
	if isDeviceBusy(err) {
		d.log.AddLine(fmt.Sprintf("デバイスがビジーのため再試行します (%v後): %v", busyRetryBackoff, err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(busyRetryBackoff):
		}

		if err = d.captureOnce(ctx, targetPath); err == nil {
			d.log.AddLine(fmt.Sprintf("再試行で撮影コマンドが完了しました: %s", targetPath))
			return
		}
	}

	// 撮影できない環境でもパイプラインを完了させるため代替画像へフォールバック
	d.log.AddLine(fmt.Sprintf("撮影に失敗したため代替画像へフォールバックします: %v", err))
	if werr := d.placeholder.Write(targetPath); werr != nil {
		d.log.AddLine(fmt.Sprintf("代替画像の書き込みに失敗: %v", werr))
	}
}

// captureOnce はffmpegで1フレームをターゲットパスへ書き込む
func (d *FFmpegDevice) captureOnce(ctx context.Context, targetPath string) error {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", d.width, d.height),
		"-i", d.devicePath,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2", // 高品質JPEG
		"-y",
		targetPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("フレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	return nil
}

// isDeviceBusy はエラーが一時的なデバイスビジーかどうか判定する
func isDeviceBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "device or resource busy") || strings.Contains(msg, "resource busy")
}
