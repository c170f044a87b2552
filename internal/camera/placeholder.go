package camera

import (
	"context"
	"fmt"
	"image/color"
	"os"

	"github.com/disintegration/imaging"

	"utsushi/internal/logbook"
	"utsushi/internal/metrics"
)

// PlaceholderWriter は代替画像（ダミー写真）を書き込む
// 実カメラが使えない場合でもパイプラインを決定的に完了させるために使う
type PlaceholderWriter struct {
	dummyPath string
	width     int
	height    int
	log       *logbook.Log
}

// NewPlaceholderWriter は新しいPlaceholderWriterを作成する
func NewPlaceholderWriter(dummyPath string, width, height int, log *logbook.Log) *PlaceholderWriter {
	return &PlaceholderWriter{
		dummyPath: dummyPath,
		width:     width,
		height:    height,
		log:       log,
	}
}

// Write は代替画像をターゲットパスへ書き込む
// 設定された代替画像ファイルをコピーし、無ければ単色のJPEGを生成する
func (w *PlaceholderWriter) Write(targetPath string) error {
	defer metrics.PlaceholdersWritten.Inc()

	if w.dummyPath != "" {
		if data, err := os.ReadFile(w.dummyPath); err == nil {
			if err := os.WriteFile(targetPath, data, 0644); err != nil {
				return fmt.Errorf("代替画像のコピーに失敗: %w", err)
			}
			w.log.AddLine(fmt.Sprintf("代替画像をコピーしました: %s -> %s", w.dummyPath, targetPath))
			return nil
		}
		w.log.AddLine(fmt.Sprintf("代替画像ファイルが読めないため生成します: %s", w.dummyPath))
	}

	// 単色のJPEGを生成する
	img := imaging.New(w.width, w.height, color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})
	if err := imaging.Save(img, targetPath, imaging.JPEGQuality(80)); err != nil {
		return fmt.Errorf("代替画像の生成に失敗: %w", err)
	}

	w.log.AddLine(fmt.Sprintf("代替画像を生成しました: %s (%dx%d)", targetPath, w.width, w.height))
	return nil
}

// PlaceholderDevice はカメラデバイスが無い環境用の撮影デバイス
// 撮影指示を受けると非同期に代替画像を書き込む
type PlaceholderDevice struct {
	writer *PlaceholderWriter
	log    *logbook.Log
}

// NewPlaceholderDevice は新しいPlaceholderDeviceを作成する
func NewPlaceholderDevice(writer *PlaceholderWriter, log *logbook.Log) *PlaceholderDevice {
	return &PlaceholderDevice{
		writer: writer,
		log:    log,
	}
}

// StartCapture は代替画像の書き込みを非同期に開始する
func (d *PlaceholderDevice) StartCapture(_ context.Context, targetPath string) {
	d.log.AddLine(fmt.Sprintf("カメラ非搭載環境のため代替画像を作成します: %s", targetPath))

	go func() {
		if err := d.writer.Write(targetPath); err != nil {
			d.log.AddLine(fmt.Sprintf("代替画像の書き込みに失敗: %v", err))
		}
	}()
}

// Available は常にtrueを返す（代替画像はいつでも生成できる）
func (d *PlaceholderDevice) Available(_ context.Context) bool {
	return true
}

// Name はデバイスの表示名を返す
func (d *PlaceholderDevice) Name() string {
	return "placeholder"
}
