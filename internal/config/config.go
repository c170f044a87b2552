package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFolderSentinel は「既定の写真フォルダを使う」ことを示す設定値
const DefaultFolderSentinel = "default"

// configRelativePrefix は設定ファイルのあるディレクトリからの相対パスを示す接頭辞
const configRelativePrefix = "//"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Photo   PhotoConfig   `mapstructure:"photo"`
	Capture CaptureConfig `mapstructure:"capture"`
	Log     LogConfig     `mapstructure:"log"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `mapstructure:"host"` // リッスンするホスト
	Port int    `mapstructure:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 書き込みタイムアウト
}

// PhotoConfig は写真の保存と配信に関する設定
type PhotoConfig struct {
	// 写真フォルダの設定値
	// "default" の場合は既定フォルダ、"//" で始まる場合は設定ファイルからの相対パス
	FolderPath string `mapstructure:"folder_path"`

	FilePrefix       string `mapstructure:"file_prefix"`        // 撮影ファイル名の接頭辞
	DummyFilePath    string `mapstructure:"dummy_file_path"`    // 代替画像のパス
	PreviewLastPhoto bool   `mapstructure:"preview_last_photo"` // プレビュー機能の有効化
	PreviewMaxPixels int    `mapstructure:"preview_max_pixels"` // プレビューの最大辺ピクセル数

	// 解決済みの写真フォルダ絶対パス（Loadで設定される）
	ResolvedDir string `mapstructure:"-"`
}

// CaptureConfig は撮影動作の設定
type CaptureConfig struct {
	WaitSeconds  int           `mapstructure:"wait_seconds"`  // 撮影完了を待つ最大秒数
	PollInterval time.Duration `mapstructure:"poll_interval"` // ファイル出現の監視間隔
	DevicePath   string        `mapstructure:"device_path"`   // カメラデバイスパス (例: /dev/video0)
	Width        int           `mapstructure:"width"`         // 画像幅
	Height       int           `mapstructure:"height"`        // 画像高さ
}

// LogConfig はログ出力の設定
type LogConfig struct {
	FilePath string `mapstructure:"file_path"` // 追記専用のログファイルパス
}

// ArchiveConfig は撮影写真のS3互換ストレージへのミラー設定
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Load は設定ファイルと環境変数から設定を読み込む
// configPath が空、またはファイルが存在しない場合はデフォルト値を使う
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// デフォルト値
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 0) // 撮影待機のためタイムアウト無効化
	v.SetDefault("photo.folder_path", DefaultFolderSentinel)
	v.SetDefault("photo.file_prefix", "Utsushi")
	v.SetDefault("photo.dummy_file_path", "")
	v.SetDefault("photo.preview_last_photo", false)
	v.SetDefault("photo.preview_max_pixels", 1024)
	v.SetDefault("capture.wait_seconds", 60)
	v.SetDefault("capture.poll_interval", 200*time.Millisecond)
	v.SetDefault("capture.device_path", "/dev/video0")
	v.SetDefault("capture.width", 1280)
	v.SetDefault("capture.height", 720)
	v.SetDefault("log.file_path", "utsushi.log")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.use_ssl", false)

	// 環境変数による上書き (例: UTSUSHI_SERVER_PORT)
	v.SetEnvPrefix("UTSUSHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configDir := ""
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// ファイルが無い場合はデフォルト値で続行する
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
			}
		}
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルパスの解決に失敗: %w", err)
		}
		configDir = filepath.Dir(abs)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗: %w", err)
	}

	// 写真フォルダと代替画像のパスを解決する
	resolved, err := resolvePhotoDir(cfg.Photo.FolderPath, configDir)
	if err != nil {
		return nil, err
	}
	cfg.Photo.ResolvedDir = resolved
	cfg.Photo.DummyFilePath = resolveDummyPath(cfg.Photo.DummyFilePath, configDir)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return &cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// 撮影設定の検証
	if c.Capture.WaitSeconds <= 0 {
		return fmt.Errorf("無効な撮影待機秒数: %d", c.Capture.WaitSeconds)
	}
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("無効な監視間隔: %v", c.Capture.PollInterval)
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return fmt.Errorf("無効な画像サイズ: %dx%d", c.Capture.Width, c.Capture.Height)
	}

	// アーカイブ設定の検証
	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return fmt.Errorf("アーカイブ有効時はendpointが必要です")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("アーカイブ有効時はbucketが必要です")
		}
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CaptureTimeout は撮影完了を待つ最大時間を返す
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.WaitSeconds) * time.Second
}

// resolvePhotoDir は写真フォルダの設定値を絶対パスに解決する
func resolvePhotoDir(setting, configDir string) (string, error) {
	setting = strings.TrimSpace(setting)

	var dir string
	switch {
	case setting == "" || setting == DefaultFolderSentinel:
		// 既定はカレントディレクトリ配下の photos
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("カレントディレクトリの取得に失敗: %w", err)
		}
		dir = filepath.Join(wd, "photos")
	case strings.HasPrefix(setting, configRelativePrefix):
		// 設定ファイルのあるディレクトリからの相対パス
		base := configDir
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("カレントディレクトリの取得に失敗: %w", err)
			}
			base = wd
		}
		dir = filepath.Join(base, strings.TrimPrefix(setting, configRelativePrefix))
	default:
		dir = setting
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("写真フォルダパスの解決に失敗: %w", err)
	}
	return abs, nil
}

// resolveDummyPath は代替画像パスを解決する
// 未設定の場合は設定ファイルのディレクトリ（無ければカレント）の dummy.jpg を指す
func resolveDummyPath(setting, configDir string) string {
	setting = strings.TrimSpace(setting)

	base := configDir
	if base == "" {
		base, _ = os.Getwd()
	}

	switch {
	case setting == "":
		return filepath.Join(base, "dummy.jpg")
	case strings.HasPrefix(setting, configRelativePrefix):
		return filepath.Join(base, strings.TrimPrefix(setting, configRelativePrefix))
	default:
		return setting
	}
}
