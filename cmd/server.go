// Package main はUtsushiサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"utsushi/internal/archive"
	"utsushi/internal/camera"
	"utsushi/internal/config"
	"utsushi/internal/logbook"
	"utsushi/internal/server"
	"utsushi/internal/transfer"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", "utsushi.yaml", "設定ファイルのパス")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		photoDir   = flag.String("photo-dir", "", "写真フォルダのパス")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Utsushi")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *photoDir != "" {
		cfg.Photo.ResolvedDir = *photoDir
	}

	// 共有ログを初期化する
	logb, err := logbook.New("Utsushi サーバーを起動します", cfg.Log.FilePath)
	if err != nil {
		log.Fatalf("ログの初期化に失敗しました: %v", err)
	}
	defer func() {
		_ = logb.Close()
	}()

	// 撮影・転送・アーカイブの各コンポーネントを組み立てる
	device := camera.NewDevice(cfg, logb)
	orch := camera.NewOrchestrator(cfg, device, camera.NewChainForegrounder(logb), logb)

	chunks, err := transfer.NewService(cfg.Photo.ResolvedDir, logb)
	if err != nil {
		log.Fatalf("転送サービスの初期化に失敗しました: %v", err)
	}

	archiver, err := archive.New(cfg.Archive, logb)
	if err != nil {
		log.Fatalf("アーカイブの初期化に失敗しました: %v", err)
	}
	if uploader, ok := archiver.(*archive.MinioUploader); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := uploader.EnsureBucket(ctx); err != nil {
			logb.AddLine(fmt.Sprintf("アーカイブバケットの準備に失敗: %v", err))
		}
		cancel()
	}

	handler := server.NewHandler(cfg, orch, chunks, archiver, logb)
	srv := server.New(cfg, handler, logb)

	// サーバーを起動
	log.Printf("Utsushi サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
