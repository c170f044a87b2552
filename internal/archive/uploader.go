// Package archive は撮影写真のS3互換ストレージへのミラーを担う
package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"utsushi/internal/config"
	"utsushi/internal/logbook"
	"utsushi/internal/metrics"
)

const (
	maxUploadAttempts = 3
	initialBackoff    = 500 * time.Millisecond
)

// Uploader は撮影写真をリモートストレージへミラーする
type Uploader interface {
	// Store はファイルをアップロードする
	Store(ctx context.Context, filePath string) error

	// Enabled はミラーが有効かどうかを返す
	Enabled() bool
}

// Disabled はミラー無効時の実装
type Disabled struct{}

// Store は何もしない
func (Disabled) Store(context.Context, string) error { return nil }

// Enabled は常にfalseを返す
func (Disabled) Enabled() bool { return false }

// MinioUploader はMinIO/S3互換ストレージへのアップロード実装
type MinioUploader struct {
	client *minio.Client
	bucket string
	log    *logbook.Log
}

// New は設定に基づいてUploaderを作成する
// ミラーが無効な場合はDisabledを返す
func New(cfg config.ArchiveConfig, log *logbook.Log) (Uploader, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("アーカイブクライアントの作成に失敗: %w", err)
	}

	return &MinioUploader{
		client: client,
		bucket: cfg.Bucket,
		log:    log,
	}, nil
}

// EnsureBucket はバケットの存在を確認し、無ければ作成する
func (u *MinioUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("バケットの確認に失敗: %w", err)
	}
	if exists {
		return nil
	}

	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("バケットの作成に失敗: %w", err)
	}

	u.log.AddLine(fmt.Sprintf("アーカイブバケットを作成しました: %s", u.bucket))
	return nil
}

// Store はファイルをバケットへアップロードする
// 一時的な失敗に備えて指数バックオフ付きで再試行する
func (u *MinioUploader) Store(ctx context.Context, filePath string) error {
	objectName := filepath.Base(filePath)

	err := retry(maxUploadAttempts, initialBackoff, func() error {
		_, err := u.client.FPutObject(ctx, u.bucket, objectName, filePath, minio.PutObjectOptions{
			ContentType: "image/jpeg",
		})
		return err
	})
	if err != nil {
		metrics.ArchiveUploadErrors.Inc()
		u.log.AddLine(fmt.Sprintf("アーカイブへのアップロードに失敗: %s: %v", objectName, err))
		return err
	}

	metrics.ArchiveUploads.Inc()
	u.log.AddLine(fmt.Sprintf("アーカイブへアップロードしました: %s", objectName))
	return nil
}

// Enabled は常にtrueを返す
func (u *MinioUploader) Enabled() bool { return true }

// retry は指数バックオフ付きで関数を再試行する
func retry(maxAttempts int, initialDelay time.Duration, fn func() error) error {
	delay := initialDelay

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < maxAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
