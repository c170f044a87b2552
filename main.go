package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"utsushi/internal/archive"
	"utsushi/internal/camera"
	"utsushi/internal/config"
	"utsushi/internal/logbook"
	"utsushi/internal/server"
	"utsushi/internal/transfer"
)

// defaultConfigPath は既定の設定ファイルパス
const defaultConfigPath = "utsushi.yaml"

func main() {
	if err := run(defaultConfigPath); err != nil {
		log.Fatalf("起動に失敗しました: %v", err)
	}
}

func run(configPath string) error {
	// 設定を読み込む
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// 全コンポーネントで共有するログを初期化する
	logb, err := logbook.New("Utsushi サーバーを起動します", cfg.Log.FilePath)
	if err != nil {
		return fmt.Errorf("ログの初期化に失敗: %w", err)
	}
	defer func() {
		_ = logb.Close()
	}()

	// 撮影デバイスとオーケストレータを組み立てる
	device := camera.NewDevice(cfg, logb)
	foreground := camera.NewChainForegrounder(logb)
	orch := camera.NewOrchestrator(cfg, device, foreground, logb)

	// 写真フォルダ配下のチャンク配信サービス
	chunks, err := transfer.NewService(cfg.Photo.ResolvedDir, logb)
	if err != nil {
		return fmt.Errorf("転送サービスの初期化に失敗: %w", err)
	}

	// アーカイブミラー（無効時は何もしない実装が返る）
	archiver, err := archive.New(cfg.Archive, logb)
	if err != nil {
		return fmt.Errorf("アーカイブの初期化に失敗: %w", err)
	}
	if uploader, ok := archiver.(*archive.MinioUploader); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := uploader.EnsureBucket(ctx); err != nil {
			// ミラーはベストエフォートのため、失敗しても起動は続行する
			logb.AddLine(fmt.Sprintf("アーカイブバケットの準備に失敗: %v", err))
		}
	}

	// サーバーを組み立てて起動する
	handler := server.NewHandler(cfg, orch, chunks, archiver, logb)
	srv := server.New(cfg, handler, logb)

	return srv.Start(context.Background())
}
