// Package metrics はPrometheus向けの計測値を定義する
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CapturesRequested は受け付けた撮影リクエストの総数
	CapturesRequested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_captures_requested_total",
			Help: "Total number of capture requests received",
		},
	)
	// CapturesSucceeded は写真ファイルの生成を確認できた撮影の総数
	CapturesSucceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_captures_succeeded_total",
			Help: "Total number of captures that produced a photo file",
		},
	)
	// CapturesTimedOut は期限内にファイルが出現しなかった撮影の総数
	CapturesTimedOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_captures_timed_out_total",
			Help: "Total number of captures that timed out",
		},
	)
	// PlaceholdersWritten は代替画像へのフォールバック回数
	PlaceholdersWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_placeholders_written_total",
			Help: "Total number of placeholder artifacts written",
		},
	)
	// ChunksServed は配信したチャンクの総数
	ChunksServed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_chunks_served_total",
			Help: "Total number of file chunks served",
		},
	)
	// ChunkErrors はチャンク配信で発生したエラーの総数
	ChunkErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_chunk_errors_total",
			Help: "Total number of file chunk errors",
		},
	)
	// ChunkBytesServed は配信したチャンクのバイト数分布
	ChunkBytesServed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "utsushi_chunk_bytes_served",
			Help:    "Size distribution of served file chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)
	// ArchiveUploads はアーカイブへのアップロード成功数
	ArchiveUploads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_archive_uploads_total",
			Help: "Total number of photos mirrored to the archive",
		},
	)
	// ArchiveUploadErrors はアーカイブへのアップロード失敗数
	ArchiveUploadErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_archive_upload_errors_total",
			Help: "Total number of archive upload failures",
		},
	)
)

func init() {
	prometheus.MustRegister(CapturesRequested)
	prometheus.MustRegister(CapturesSucceeded)
	prometheus.MustRegister(CapturesTimedOut)
	prometheus.MustRegister(PlaceholdersWritten)
	prometheus.MustRegister(ChunksServed)
	prometheus.MustRegister(ChunkErrors)
	prometheus.MustRegister(ChunkBytesServed)
	prometheus.MustRegister(ArchiveUploads)
	prometheus.MustRegister(ArchiveUploadErrors)
}
