package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookshelf/internal/apperr"
)

// Fetcher は /async/* ハンドラーが利用する取得処理です。
type Fetcher interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// RegisterRoutes は /async 配下のルートを登録します。
func RegisterRoutes(r gin.IRouter, f Fetcher) {
	group := r.Group("/async")
	group.GET("/books", relay(f, "書籍一覧の取得に失敗しました", func(*gin.Context) string {
		return "/"
	}))
	group.GET("/isbn/:isbn", relay(f, "ISBNによる書籍の取得に失敗しました", func(c *gin.Context) string {
		return "/isbn/" + url.PathEscape(c.Param("isbn"))
	}))
	group.GET("/author/:author", relay(f, "著者による書籍の取得に失敗しました", func(c *gin.Context) string {
		return "/author/" + url.PathEscape(c.Param("author"))
	}))
	group.GET("/title/:title", relay(f, "書名による書籍の取得に失敗しました", func(c *gin.Context) string {
		return "/title/" + url.PathEscape(c.Param("title"))
	}))
}

func relay(f Fetcher, failure string, path func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := f.Get(c.Request.Context(), path(c))
		if err != nil {
			apperr.Respond(c, toAPIError(err, failure))
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
	}
}

// toAPIError は取得の失敗を、上流のステータス（なければ 500）を持つエラーに変換します。
func toAPIError(err error, message string) *apperr.Error {
	apiErr := apperr.Wrap(err, apperr.KindUpstream, "UPSTREAM_ERROR", message)

	var fe *FetchError
	if !errors.As(err, &fe) {
		return apiErr.WithDetail("error", err.Error())
	}
	if fe.Status > 0 {
		apiErr.WithStatus(fe.Status)
	}
	if len(fe.Body) > 0 {
		return apiErr.WithDetail("error", fe.Body)
	}
	return apiErr.WithDetail("error", fe.Error())
}
