package camera

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"utsushi/internal/config"
	"utsushi/internal/logbook"
)

// fakeDevice はテスト用の撮影デバイス
// 指定された遅延の後にターゲットファイルを書き込む
type fakeDevice struct {
	delay       time.Duration
	data        []byte
	neverWrites bool

	inFlight    int32
	maxInFlight int32
}

func (d *fakeDevice) StartCapture(_ context.Context, targetPath string) {
	// 同時実行数を記録する
	cur := atomic.AddInt32(&d.inFlight, 1)
	for {
		max := atomic.LoadInt32(&d.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&d.maxInFlight, max, cur) {
			break
		}
	}

	go func() {
		defer atomic.AddInt32(&d.inFlight, -1)
		if d.neverWrites {
			return
		}
		time.Sleep(d.delay)
		_ = os.WriteFile(targetPath, d.data, 0644)
	}()
}

func (d *fakeDevice) Available(_ context.Context) bool { return true }
func (d *fakeDevice) Name() string                     { return "fake" }

// newTestOrchestrator はテスト用のOrchestratorを作成する
func newTestOrchestrator(t *testing.T, device Device, waitSeconds int) (*Orchestrator, *logbook.Log, string) {
	t.Helper()

	photoDir := t.TempDir()
	log, err := logbook.New("", "")
	if err != nil {
		t.Fatalf("ログの作成に失敗しました: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Photo: config.PhotoConfig{
			FilePrefix:  "Test",
			ResolvedDir: photoDir,
		},
		Capture: config.CaptureConfig{
			WaitSeconds:  waitSeconds,
			PollInterval: 20 * time.Millisecond,
			DevicePath:   "/dev/video0",
			Width:        640,
			Height:       480,
		},
	}

	orch := NewOrchestrator(cfg, device, NewChainForegrounder(log), log)
	return orch, log, photoDir
}

// TestCaptureSyncSuccess はデバイスがファイルを書いた場合の成功をテストする
func TestCaptureSyncSuccess(t *testing.T) {
	device := &fakeDevice{
		delay: 500 * time.Millisecond,
		data:  []byte("0123456789"), // 10バイト
	}
	orch, _, photoDir := newTestOrchestrator(t, device, 2)

	result := orch.CaptureSync(context.Background(), "T1")

	if !result.Success {
		t.Fatalf("撮影が成功しませんでした: %s", result.ErrorMessage)
	}
	if result.FileSizeBytes != 10 {
		t.Errorf("ファイルサイズが不正: got %d, want 10", result.FileSizeBytes)
	}
	if result.ErrorMessage != "" {
		t.Errorf("成功時のエラーメッセージが空ではありません: %q", result.ErrorMessage)
	}

	// ファイルが実在し、サイズが一致することを確認
	info, err := os.Stat(result.FilePath)
	if err != nil {
		t.Fatalf("撮影ファイルが存在しません: %v", err)
	}
	if info.Size() != result.FileSizeBytes {
		t.Errorf("ディスク上のサイズと不一致: got %d, want %d", info.Size(), result.FileSizeBytes)
	}

	// ファイルが写真フォルダ配下にあることを確認
	if filepath.Dir(result.FilePath) != photoDir {
		t.Errorf("撮影ファイルが写真フォルダ外にあります: %s", result.FilePath)
	}
}

// TestCaptureSyncTimeout はデバイスがファイルを書かない場合のタイムアウトをテストする
func TestCaptureSyncTimeout(t *testing.T) {
	device := &fakeDevice{neverWrites: true}
	orch, _, _ := newTestOrchestrator(t, device, 1)

	start := time.Now()
	result := orch.CaptureSync(context.Background(), "T2")
	elapsed := time.Since(start)

	if result.Success {
		t.Fatal("タイムアウトするはずの撮影が成功しました")
	}
	if result.FileSizeBytes != 0 {
		t.Errorf("タイムアウト時のファイルサイズが不正: got %d, want 0", result.FileSizeBytes)
	}
	if result.ErrorMessage != TimeoutMessage {
		t.Errorf("エラーメッセージが不正: got %q", result.ErrorMessage)
	}

	// タイムアウト + ポーリング1回分を超えてブロックしないこと
	limit := 1*time.Second + 20*time.Millisecond + 300*time.Millisecond // 余裕込み
	if elapsed > limit {
		t.Errorf("待機時間が上限を超えました: %v > %v", elapsed, limit)
	}
	if elapsed < 900*time.Millisecond {
		t.Errorf("タイムアウトより早く戻りました: %v", elapsed)
	}
}

// TestCaptureSerializes は並行リクエストでも撮影が直列化されることをテストする
func TestCaptureSerializes(t *testing.T) {
	device := &fakeDevice{
		delay: 200 * time.Millisecond,
		data:  []byte("x"),
	}
	orch, _, _ := newTestOrchestrator(t, device, 2)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	ids := []string{"heikou-1", "heikou-2"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = orch.CaptureSync(context.Background(), ids[n])
		}(i)
	}
	wg.Wait()

	// デバイスの同時実行は常に1以下であること
	if max := atomic.LoadInt32(&device.maxInFlight); max > 1 {
		t.Errorf("撮影デバイスが並行に呼び出されました: 同時実行数 %d", max)
	}

	for i, result := range results {
		if !result.Success {
			t.Errorf("撮影 %d が失敗しました: %s", i, result.ErrorMessage)
		}
	}
}

// TestBuildFilename はファイル名の形式とIDの無害化をテストする
func TestBuildFilename(t *testing.T) {
	device := &fakeDevice{neverWrites: true}
	orch, _, photoDir := newTestOrchestrator(t, device, 1)

	testCases := []struct {
		name string
		id   string
		want *regexp.Regexp
	}{
		{
			"通常のID",
			"photo-01",
			regexp.MustCompile(`^Test_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}_photo-01\.jpg$`),
		},
		{
			"パス区切りを含むID",
			"../evil",
			regexp.MustCompile(`^Test_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}_\.\._evil\.jpg$`),
		},
		{
			"空のID",
			"",
			regexp.MustCompile(`^Test_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}_\.jpg$`),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := orch.BuildFilename(tc.id)

			// 常に写真フォルダ直下であること
			if filepath.Dir(got) != photoDir {
				t.Errorf("ファイルが写真フォルダ外に生成されます: %s", got)
			}

			base := filepath.Base(got)
			if !tc.want.MatchString(base) {
				t.Errorf("ファイル名の形式が不正: %s", base)
			}
			if strings.ContainsRune(base, os.PathSeparator) {
				t.Errorf("ファイル名にパス区切りが含まれています: %s", base)
			}
		})
	}
}

// TestCaptureWithPlaceholderDevice は代替画像デバイスでの撮影完了をテストする
func TestCaptureWithPlaceholderDevice(t *testing.T) {
	log, err := logbook.New("", "")
	if err != nil {
		t.Fatalf("ログの作成に失敗しました: %v", err)
	}

	photoDir := t.TempDir()
	cfg := &config.Config{
		Photo: config.PhotoConfig{
			FilePrefix:  "Test",
			ResolvedDir: photoDir,
			// 代替画像ファイルは無し → 生成パスを通る
		},
		Capture: config.CaptureConfig{
			WaitSeconds:  5,
			PollInterval: 20 * time.Millisecond,
			Width:        320,
			Height:       240,
		},
	}

	writer := NewPlaceholderWriter("", 320, 240, log)
	device := NewPlaceholderDevice(writer, log)
	orch := NewOrchestrator(cfg, device, NewChainForegrounder(log), log)

	result := orch.CaptureSync(context.Background(), "dummy")

	if !result.Success {
		t.Fatalf("代替画像での撮影が失敗しました: %s", result.ErrorMessage)
	}
	if result.FileSizeBytes <= 0 {
		t.Errorf("代替画像のサイズが不正: %d", result.FileSizeBytes)
	}

	// 生成されたファイルがJPEGであることを確認（SOIマーカー）
	data, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatalf("代替画像の読み込みに失敗しました: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("生成されたファイルがJPEGではありません")
	}
}
