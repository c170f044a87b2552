package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"image/color"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"utsushi/internal/archive"
	"utsushi/internal/camera"
	"utsushi/internal/config"
	"utsushi/internal/logbook"
	"utsushi/internal/transfer"
)

// responseLogLimit はログに記録する応答の最大バイト数
const responseLogLimit = 500

// archiveTimeout はアーカイブアップロード1回あたりの最大時間
const archiveTimeout = 60 * time.Second

// Handler は撮影・転送エンドポイントの実装
type Handler struct {
	config   *config.Config
	orch     *camera.Orchestrator
	chunks   *transfer.Service
	archiver archive.Uploader
	log      *logbook.Log
}

// NewHandler は新しいHandlerを作成する
func NewHandler(cfg *config.Config, orch *camera.Orchestrator, chunks *transfer.Service, archiver archive.Uploader, log *logbook.Log) *Handler {
	return &Handler{
		config:   cfg,
		orch:     orch,
		chunks:   chunks,
		archiver: archiver,
		log:      log,
	}
}

// captureResponse は /capture の応答
type captureResponse struct {
	HasError      bool   `json:"has_error"`
	Message       string `json:"message"`
	ID            string `json:"id"`
	FileSizeBytes int64  `json:"file_size_in_bytes"`
	FilePath      string `json:"file_path"`
	Log           string `json:"log"`
}

// chunkResponse は /get_file_chunk の応答
type chunkResponse struct {
	HasError       bool   `json:"has_error"`
	Message        string `json:"message"`
	ID             string `json:"id"`
	FileSizeBytes  int64  `json:"file_size_in_bytes"`
	FilePath       string `json:"file_path"`
	IsLastChunk    bool   `json:"is_last_chunk"`
	OffsetBytes    int64  `json:"offset_in_bytes"`
	ChunkSizeBytes int64  `json:"chunk_size_in_bytes"`
	BodyBase64     string `json:"chunk_body_as_base64"`
	Log            string `json:"log"`
}

// logResponse は応答の内容を先頭部分だけログに記録する
func (h *Handler) logResponse(response any) {
	body, err := json.Marshal(response)
	if err != nil {
		return
	}
	if len(body) > responseLogLimit {
		body = body[:responseLogLimit]
	}
	h.log.AddLine(fmt.Sprintf("応答を返します: %s", body))
}

// Capture は1回の撮影を駆動するエンドポイントの実装
// 撮影の完了・失敗・タイムアウトのいずれでもHTTP 200で結果を報告する
func (h *Handler) Capture(c *gin.Context) {
	id := c.DefaultQuery("id", "no_id")
	h.log.AddLine(fmt.Sprintf("撮影リクエストを受信しました: id=%s", id))

	result := h.orch.CaptureSync(c.Request.Context(), id)

	message := "Ok"
	if !result.Success {
		message = result.ErrorMessage
	}

	response := captureResponse{
		HasError:      !result.Success,
		Message:       html.EscapeString(message),
		ID:            id,
		FileSizeBytes: result.FileSizeBytes,
		FilePath:      result.FilePath,
		Log:           html.EscapeString(h.log.Body()),
	}

	// 撮影成功時はアーカイブへ非同期にミラーする（応答をブロックしない）
	if result.Success && h.archiver.Enabled() {
		go func(filePath string) {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			_ = h.archiver.Store(ctx, filePath)
		}(result.FilePath)
	}

	h.logResponse(response)
	c.JSON(http.StatusOK, response)
}

// GetFileChunk はファイルの有界チャンクを返すエンドポイントの実装
// offset_in_bytes と chunk_size_in_bytes は解釈できない場合に黙って既定値を使う
func (h *Handler) GetFileChunk(c *gin.Context) {
	id := c.DefaultQuery("id", "no_id")
	filePath := c.Query("file_path")
	offset := int64Query(c, "offset_in_bytes", 0)
	chunkSize := int64Query(c, "chunk_size_in_bytes", transfer.DefaultChunkSizeBytes)

	h.log.AddLine(fmt.Sprintf("チャンクリクエストを受信しました: id=%s, file_path=%s, offset=%d, size=%d",
		id, filePath, offset, chunkSize))

	chunk := h.chunks.GetChunk(filePath, offset, chunkSize)

	response := chunkResponse{
		HasError:       chunk.HasError,
		Message:        html.EscapeString(chunk.Message),
		ID:             id,
		FileSizeBytes:  chunk.FileSizeBytes,
		FilePath:       filePath,
		IsLastChunk:    chunk.IsLastChunk,
		OffsetBytes:    chunk.OffsetBytes,
		ChunkSizeBytes: chunk.ChunkSizeBytes,
		BodyBase64:     chunk.BodyBase64,
		Log:            html.EscapeString(h.log.Body()),
	}

	h.logResponse(response)
	c.JSON(http.StatusOK, response)
}

// GetImg は写真フォルダ内の画像を直接配信するエンドポイントの実装
// パスが不正または画像が無い場合は代替画像にフォールバックする
func (h *Handler) GetImg(c *gin.Context) {
	fileName := c.Query("file_name")

	// プレビュー有効時は設定された最大辺を既定とし、max_pxで上書きできる
	defaultMaxPx := 0
	if h.config.Photo.PreviewLastPhoto {
		defaultMaxPx = h.config.Photo.PreviewMaxPixels
	}
	maxPx := intQuery(c, "max_px", defaultMaxPx)

	path, err := h.chunks.ResolvePath(filepath.Join(h.chunks.Root(), fileName))
	if err != nil {
		h.log.AddLine(fmt.Sprintf("画像リクエストを拒否し代替画像を返します: file_name=%s", fileName))
		h.serveFallback(c)
		return
	}

	if _, err := os.Stat(path); err != nil {
		h.log.AddLine(fmt.Sprintf("画像が見つからないため代替画像を返します: %s", path))
		h.serveFallback(c)
		return
	}

	// 縮小プレビューが要求された場合は変換して返す
	if maxPx > 0 {
		h.servePreview(c, path, maxPx)
		return
	}

	c.File(path)
}

// servePreview は画像を指定された最大辺に収めて配信する
func (h *Handler) servePreview(c *gin.Context, path string, maxPx int) {
	img, err := imaging.Open(path)
	if err != nil {
		h.log.AddLine(fmt.Sprintf("プレビュー用の画像読み込みに失敗: %v", err))
		c.File(path)
		return
	}

	fitted := imaging.Fit(img, maxPx, maxPx, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		h.log.AddLine(fmt.Sprintf("プレビューの符号化に失敗: %v", err))
		c.File(path)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// serveFallback は代替画像を配信する
// 代替画像ファイルが無い場合は単色の画像を生成して返す
func (h *Handler) serveFallback(c *gin.Context) {
	dummy := h.config.Photo.DummyFilePath
	if _, err := os.Stat(dummy); err == nil {
		c.File(dummy)
		return
	}

	img := imaging.New(h.config.Capture.Width, h.config.Capture.Height,
		color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}

	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// GetLog は指定された行数より後のログ行を返すエンドポイントの実装
func (h *Handler) GetLog(c *gin.Context) {
	alreadyShown := intQuery(c, "already_shown", 0)

	c.JSON(http.StatusOK, gin.H{
		"lines":      h.log.NewLines(alreadyShown),
		"line_count": h.log.LineCount(),
	})
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Metrics はPrometheusメトリクスエンドポイントの実装
func (h *Handler) Metrics(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}

// NotFound は未定義パスのハンドラ
func (h *Handler) NotFound(c *gin.Context) {
	c.String(http.StatusNotFound, "404 Not Found")
}

// int64Query はクエリパラメータをint64として読む
// 欠落または解釈できない値は黙って既定値に置き換える
func int64Query(c *gin.Context, key string, fallback int64) int64 {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

// intQuery はクエリパラメータをintとして読む
func intQuery(c *gin.Context, key string, fallback int) int {
	return int(int64Query(c, key, int64(fallback)))
}
