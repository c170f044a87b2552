package camera

import (
	"context"
	"fmt"

	"utsushi/internal/config"
	"utsushi/internal/logbook"
)

// NewDevice は設定に基づいて利用可能な撮影デバイスを選択する
// カメラデバイスが見つからない環境では代替画像デバイスへフォールバックする
func NewDevice(cfg *config.Config, log *logbook.Log) Device {
	placeholder := NewPlaceholderWriter(
		cfg.Photo.DummyFilePath,
		cfg.Capture.Width,
		cfg.Capture.Height,
		log,
	)

	ffmpeg := NewFFmpegDevice(
		cfg.Capture.DevicePath,
		cfg.Capture.Width,
		cfg.Capture.Height,
		placeholder,
		log,
	)

	if ffmpeg.Available(context.Background()) {
		log.AddLine(fmt.Sprintf("撮影デバイスを選択しました: %s", ffmpeg.Name()))
		return ffmpeg
	}

	log.AddLine(fmt.Sprintf("カメラデバイスが利用できないため代替画像デバイスを使用します: %s", cfg.Capture.DevicePath))
	return NewPlaceholderDevice(placeholder, log)
}
