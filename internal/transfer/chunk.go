// Package transfer は保存済みファイルの有界チャンク配信を担う
//
// # 責務
// - 任意オフセットからの有界バイト範囲の読み出しとbase64符号化
// - 配信対象パスが許可されたルート配下にあることの検証
// - 読み出し失敗の構造化エラーへの変換
//
// # 仕様
// - サービスは呼び出し間で状態を持たない（カーソルはクライアント側）
// - is_last_chunk = (offset + 読めたバイト数 >= ファイルサイズ)
// - ルート外のパスは内容を一切返さず、汎用の拒否メッセージで応答する
package transfer

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"utsushi/internal/logbook"
	"utsushi/internal/metrics"
)

// DefaultChunkSizeBytes は1チャンクの既定サイズ
const DefaultChunkSizeBytes = 1048576

// Chunk は1回のチャンク読み出しの結果
type Chunk struct {
	HasError       bool
	Message        string
	FileSizeBytes  int64
	IsLastChunk    bool
	OffsetBytes    int64
	ChunkSizeBytes int64
	BodyBase64     string
}

// Service は許可されたルート配下のファイルをチャンク単位で配信する
type Service struct {
	root string
	log  *logbook.Log
}

// NewService は新しいServiceを作成する
// root は配信を許可するディレクトリの絶対パス
func NewService(root string, log *logbook.Log) (*Service, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ルートパスの解決に失敗: %w", err)
	}
	return &Service{root: abs, log: log}, nil
}

// Root は配信を許可するルートディレクトリを返す
func (s *Service) Root() string {
	return s.root
}

// ResolvePath はパスを正規化し、ルート配下にあることを検証する
// ルート外を指すパスはエラーになる
func (s *Service) ResolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("パスの解決に失敗: %w", err)
	}

	// 正規化後の文字列接頭辞でルート配下であることを確認する
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("許可された写真フォルダ (%s) の配下ではありません", s.root)
	}

	return abs, nil
}

// GetChunk は指定オフセットから最大chunkSizeBytesを読み出して返す
// いかなる失敗もHasErrorを立てたChunk値として返し、エラーを伝播させない
func (s *Service) GetChunk(filePath string, offsetBytes, chunkSizeBytes int64) Chunk {
	chunk := Chunk{
		OffsetBytes:    offsetBytes,
		ChunkSizeBytes: chunkSizeBytes,
	}

	abs, err := s.ResolvePath(filePath)
	if err != nil {
		// ルート外のパスには内容もエラー詳細も返さない
		message := fmt.Sprintf("アクセスが拒否されました: file_pathが許可された写真フォルダ (%s) の配下にありません", s.root)
		s.log.AddLine(message)
		metrics.ChunkErrors.Inc()

		chunk.HasError = true
		chunk.Message = message
		chunk.IsLastChunk = true
		return chunk
	}

	info, err := os.Stat(abs)
	if err != nil {
		message := fmt.Sprintf("ファイルサイズの取得に失敗: %v", err)
		s.log.AddLine(message)
		metrics.ChunkErrors.Inc()

		chunk.HasError = true
		chunk.Message = message
		chunk.IsLastChunk = true
		return chunk
	}
	chunk.FileSizeBytes = info.Size()

	// 末尾以降の読み出しは空の最終チャンク（エラーではない）
	if offsetBytes >= info.Size() {
		chunk.IsLastChunk = true
		chunk.Message = "Ok"
		return chunk
	}

	body, readErr := s.readChunk(abs, offsetBytes, chunkSizeBytes)
	if readErr != nil {
		message := fmt.Sprintf("ファイルの読み出しに失敗: %v", readErr)
		s.log.AddLine(message)
		metrics.ChunkErrors.Inc()

		chunk.HasError = true
		chunk.Message = message
		chunk.IsLastChunk = true
		return chunk
	}

	chunk.BodyBase64 = base64.StdEncoding.EncodeToString(body)
	chunk.IsLastChunk = offsetBytes+int64(len(body)) >= info.Size()
	chunk.Message = "Ok"

	metrics.ChunksServed.Inc()
	metrics.ChunkBytesServed.Observe(float64(len(body)))

	return chunk
}

// readChunk はオフセットへシークして最大chunkSizeBytesを読み出す
func (s *Service) readChunk(absPath string, offsetBytes, chunkSizeBytes int64) ([]byte, error) {
	if chunkSizeBytes < 0 {
		// 負値でのバッファ確保を避ける
		chunkSizeBytes = 0
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.Seek(offsetBytes, io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, chunkSizeBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	return buf[:n], nil
}
