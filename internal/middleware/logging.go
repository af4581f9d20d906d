// Package middleware はHTTPサーバー共通のミドルウェア（リクエストログ、メトリクス）を提供します。
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	TraceIDHeader     = "X-Trace-ID"
	TraceParentHeader = "traceparent"

	// ContextTraceIDKey は gin.Context に保存するトレースIDのキーです。
	ContextTraceIDKey = "trace_id"
)

// TraceID は実行中のスパン、リクエストヘッダーの順にトレースIDを取り出し、なければ新規に生成します。
// traceparent（W3C Trace Context）を X-Trace-ID より優先します。
func TraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if tp := c.GetHeader(TraceParentHeader); tp != "" {
		// version-trace_id-parent_id-flags
		parts := strings.Split(tp, "-")
		if len(parts) >= 2 && parts[1] != "" {
			return parts[1]
		}
	}
	if id := c.GetHeader(TraceIDHeader); id != "" {
		return id
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Logging はトレースID付きのロガーをリクエストのコンテキストへ注入し、
// 処理完了後にリクエスト1件につき1行のアクセスログを出力します。
func Logging(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		traceID := TraceID(c)
		c.Set(ContextTraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		logger := base.With().Str("trace_id", traceID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Info()
		}
		event.
			Str("method", method).
			Str("path", path).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Msg("HTTP request")
	}
}
