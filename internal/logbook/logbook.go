package logbook

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TimestampFormat はログ行の先頭に付与するタイムスタンプの書式
const TimestampFormat = "2006-01-02 15:04:05"

// Log は全コンポーネントで共有する追記専用のログ
// 行の追記は直列化され、読み取りは追記と並行して安全に行える
type Log struct {
	mu      sync.RWMutex
	lines   []string
	file    *os.File
	console zerolog.Logger
}

// New は新しいLogを作成する
// filePath が空でない場合、各行を追記専用のログファイルにも書き込む
func New(initialLine, filePath string) (*Log, error) {
	var file *os.File
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("ログファイルのオープンに失敗: %w", err)
		}
		file = f
	}

	// コンソールへのミラー出力
	console := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: TimestampFormat,
	}).With().Timestamp().Logger()

	l := &Log{
		lines:   make([]string, 0, 256),
		file:    file,
		console: console,
	}

	if initialLine != "" {
		l.AddLine(initialLine)
	}

	return l, nil
}

// AddLine はタイムスタンプを付与した1行を追記する
// コンソールとログファイルにも同じ内容をミラーする
func (l *Log) AddLine(line string) {
	stamped := fmt.Sprintf("%s %s", time.Now().Format(TimestampFormat), line)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, stamped)

	// コンソールへミラー（タイムスタンプはzerolog側が付与する）
	l.console.Info().Msg(line)

	// ログファイルへ追記（失敗してもログ本体は維持する）
	if l.file != nil {
		_, _ = l.file.WriteString(stamped + "\n")
	}
}

// Body は現在までの全ログ行を改行区切りの1つの文字列として返す
func (l *Log) Body() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.lines) == 0 {
		return ""
	}
	return strings.Join(l.lines, "\n") + "\n"
}

// NewLines は指定された行数より後に追記された行のみを返す
// alreadyShown は呼び出し側が既に処理済みの行数
func (l *Log) NewLines(alreadyShown int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if alreadyShown < 0 {
		alreadyShown = 0
	}
	if alreadyShown >= len(l.lines) {
		return []string{}
	}

	// 呼び出し側での変更から保護するためコピーを返す
	result := make([]string, len(l.lines)-alreadyShown)
	copy(result, l.lines[alreadyShown:])
	return result
}

// LineCount は現在のログ行数を返す
func (l *Log) LineCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.lines)
}

// Close はログファイルをクローズする
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
