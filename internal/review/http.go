package review

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/bookshelf/internal/apperr"
	"github.com/yourusername/bookshelf/internal/auth"
	"github.com/yourusername/bookshelf/internal/catalog"
)

// RegisterRoutes は保護ルート（認証ガード適用済みのグループ）にレビュー操作を登録します。
func RegisterRoutes(r gin.IRouter, ledger *Ledger) {
	r.PUT("/review/:isbn", UpsertHandler(ledger))
	r.DELETE("/review/:isbn", DeleteHandler(ledger))
}

// UpsertHandler は PUT /customer/auth/review/:isbn?review=... のハンドラーです。
func UpsertHandler(ledger *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		isbn := c.Param("isbn")
		username, _ := auth.CurrentUser(c)

		reviews, err := ledger.Upsert(c.Request.Context(), isbn, c.Query("review"), username)
		if err != nil {
			respondWithError(c, err)
			return
		}

		zerolog.Ctx(c.Request.Context()).Info().Str("isbn", isbn).Str("username", username).Msg("review saved")
		c.JSON(http.StatusOK, gin.H{
			"message": "レビューを保存しました",
			"isbn":    isbn,
			"reviews": reviews,
		})
	}
}

// DeleteHandler は DELETE /customer/auth/review/:isbn のハンドラーです。
func DeleteHandler(ledger *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		isbn := c.Param("isbn")
		username, _ := auth.CurrentUser(c)

		reviews, err := ledger.Delete(c.Request.Context(), isbn, username)
		if err != nil {
			respondWithError(c, err)
			return
		}

		zerolog.Ctx(c.Request.Context()).Info().Str("isbn", isbn).Str("username", username).Msg("review deleted")
		c.JSON(http.StatusOK, gin.H{
			"message": "レビューを削除しました",
			"isbn":    isbn,
			"reviews": reviews,
		})
	}
}

func respondWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		apperr.Respond(c, auth.ErrNotLoggedIn)
	case errors.Is(err, ErrEmptyReview):
		apperr.Respond(c, apperr.Wrap(err, apperr.KindValidation, "INVALID_INPUT", "review クエリパラメータでレビュー本文を指定してください"))
	case errors.Is(err, catalog.ErrBookNotFound):
		apperr.Respond(c, apperr.Wrap(err, apperr.KindNotFound, "BOOK_NOT_FOUND", "指定された書籍は存在しません"))
	case errors.Is(err, ErrReviewNotFound):
		apperr.Respond(c, apperr.Wrap(err, apperr.KindNotFound, "REVIEW_NOT_FOUND", "この書籍にあなたのレビューはありません"))
	default:
		apperr.Respond(c, err)
	}
}
