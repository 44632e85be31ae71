// Package logger はmetachan全体で使うJSON構造化ログの初期化を行う。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName は全ログ行に付与するservice属性の値。
const ServiceName = "metachan"

// redactedKeys は値を伏せる属性キー。TVDB/TMDBの認証情報がログに出ないようにする。
var redactedKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"token":         true,
	"authorization": true,
	"password":      true,
}

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。不明な値はInfo。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Setup はwへ書き出すJSONロガーを返す。Debug時のみ呼び出し元のファイル位置を含める。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: redact,
	})
	return slog.New(h).With(slog.String("service", ServiceName))
}

// SetupDefault はSetupのロガーをslogの既定に設定する。wがnilなら標準出力。
func SetupDefault(w io.Writer, level slog.Level) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, level))
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] && a.Value.String() != "" {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
