// Package logger はサービス共通の構造化ロガー（log/slog）を生成する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New はJSON形式で出力する構造化ロガーを生成する。
// すべてのログにサービス名を付与する。wがnilの場合は標準出力に書き込む。
func New(service, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel はログレベル文字列をslog.Levelに変換する。
// 不明な値の場合はInfoレベルを返す。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
