package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"utsushi/internal/config"
	"utsushi/internal/logbook"
)

// TestNewDisabled はミラー無効時にDisabledが返ることをテストする
func TestNewDisabled(t *testing.T) {
	log, err := logbook.New("", "")
	if err != nil {
		t.Fatalf("ログの作成に失敗しました: %v", err)
	}

	uploader, err := New(config.ArchiveConfig{Enabled: false}, log)
	if err != nil {
		t.Fatalf("Uploaderの作成に失敗しました: %v", err)
	}

	if uploader.Enabled() {
		t.Error("無効設定なのにEnabledがtrueです")
	}

	// Disabledはアップロードせずに成功する
	if err := uploader.Store(context.Background(), "/tmp/nai.jpg"); err != nil {
		t.Errorf("Disabledがエラーを返しました: %v", err)
	}
}

// TestNewEnabled は有効設定でMinioUploaderが作られることをテストする
func TestNewEnabled(t *testing.T) {
	log, err := logbook.New("", "")
	if err != nil {
		t.Fatalf("ログの作成に失敗しました: %v", err)
	}

	uploader, err := New(config.ArchiveConfig{
		Enabled:   true,
		Endpoint:  "localhost:9000",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "photos",
	}, log)
	if err != nil {
		t.Fatalf("Uploaderの作成に失敗しました: %v", err)
	}

	if !uploader.Enabled() {
		t.Error("有効設定なのにEnabledがfalseです")
	}
}

// TestRetry は再試行の回数と打ち切りをテストする
func TestRetry(t *testing.T) {
	t.Run("途中から成功", func(t *testing.T) {
		calls := 0
		err := retry(3, time.Millisecond, func() error {
			calls++
			if calls < 2 {
				return errors.New("一時的な失敗")
			}
			return nil
		})

		if err != nil {
			t.Errorf("再試行後に成功するはずがエラーになりました: %v", err)
		}
		if calls != 2 {
			t.Errorf("呼び出し回数が不正: got %d, want 2", calls)
		}
	})

	t.Run("全て失敗", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("恒久的な失敗")
		err := retry(3, time.Millisecond, func() error {
			calls++
			return wantErr
		})

		if !errors.Is(err, wantErr) {
			t.Errorf("最後のエラーが返りませんでした: %v", err)
		}
		if calls != 3 {
			t.Errorf("呼び出し回数が不正: got %d, want 3", calls)
		}
	})

	t.Run("初回成功", func(t *testing.T) {
		calls := 0
		if err := retry(3, time.Millisecond, func() error {
			calls++
			return nil
		}); err != nil {
			t.Errorf("初回成功がエラーになりました: %v", err)
		}
		if calls != 1 {
			t.Errorf("呼び出し回数が不正: got %d, want 1", calls)
		}
	})
}
