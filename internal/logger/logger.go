// Package logger は zerolog のグローバル設定を提供します。
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup はログレベルと出力形式を設定し、グローバルロガーを差し替えます。
// 不明なレベルは info として扱います。
func Setup(level, format string) zerolog.Logger {
	return SetupWithWriter(os.Stdout, level, format)
}

// SetupWithWriter は出力先を指定して Setup と同じ設定を行います。
func SetupWithWriter(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", "bookshelf-api").Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger
}
