// Package apperr はAPI全体で共通のエラー分類と、JSONエラーレスポンスへの変換を提供します。
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Kind はエラーの分類を表します。分類ごとに既定のHTTPステータスが決まります。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindUpstream
)

// Status は分類に対応する既定のHTTPステータスを返します。
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error はクライアントへ返却できるエラーです。
// Status が 0 の場合は Kind の既定ステータスを使います。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus はレスポンスに使うステータスを返します。
func (e *Error) HTTPStatus() int {
	if e.Status > 0 {
		return e.Status
	}
	return e.Kind.Status()
}

// New は Error を作成します。
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap は原因となるエラーを保持した Error を作成します。
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithDetail はレスポンス本文に追加するフィールドを設定します。
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithStatus は既定ステータスを上書きします。
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// Authentication などは分類ごとの簡易コンストラクタです。
func Authentication(code, message string) *Error { return New(KindAuthentication, code, message) }

func Authorization(code, message string) *Error { return New(KindAuthorization, code, message) }

func NotFound(code, message string) *Error { return New(KindNotFound, code, message) }

// Body はレスポンス本文を組み立てます。
func (e *Error) Body() gin.H {
	body := gin.H{}
	for k, v := range e.Details {
		body[k] = v
	}
	body["code"] = e.Code
	body["message"] = e.Message
	return body
}

// Respond は任意のエラーをJSONレスポンスに変換して返却し、以降のハンドラーを中断します。
// *Error 以外のエラーは内部情報を含めずに 500 として返します。
func Respond(c *gin.Context, err error) {
	logger := zerolog.Ctx(c.Request.Context())

	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := apiErr.HTTPStatus()
		event := logger.Warn()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.Err(err).Str("code", apiErr.Code).Str("kind", apiErr.Kind.String()).Msg("request failed")
		c.AbortWithStatusJSON(status, apiErr.Body())
	case errors.Is(err, context.Canceled):
		logger.Warn().Err(err).Msg("request canceled")
		c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		logger.Error().Err(err).Msg("unexpected error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
