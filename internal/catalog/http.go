package catalog

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookshelf/internal/apperr"
)

func bookNotFound(err error) error {
	return apperr.Wrap(err, apperr.KindNotFound, "BOOK_NOT_FOUND", "指定された書籍は存在しません")
}

func respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, ErrBookNotFound) {
		apperr.Respond(c, bookNotFound(err))
		return
	}
	apperr.Respond(c, err)
}

// RegisterRoutes は認証不要の参照系ルートを登録します。
func RegisterRoutes(r gin.IRouter, store Store) {
	r.GET("/", ListHandler(store))
	r.GET("/isbn/:isbn", ISBNHandler(store))
	r.GET("/author/:author", AuthorHandler(store))
	r.GET("/title/:title", TitleHandler(store))
	r.GET("/review/:isbn", ReviewsHandler(store))
}

// ListHandler は GET / のハンドラーです。ISBN をキーとしたオブジェクトを整形して返します。
func ListHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		books, err := store.List(c.Request.Context())
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		byISBN := make(map[string]Book, len(books))
		for _, b := range books {
			byISBN[b.ISBN] = b
		}
		c.IndentedJSON(http.StatusOK, byISBN)
	}
}

// ISBNHandler は GET /isbn/:isbn のハンドラーです。
func ISBNHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		book, err := store.Get(c.Request.Context(), c.Param("isbn"))
		if err != nil {
			respondLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

// AuthorHandler は GET /author/:author のハンドラーです。
func AuthorHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		books, err := store.FindByAuthor(c.Request.Context(), c.Param("author"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if len(books) == 0 {
			apperr.Respond(c, apperr.NotFound("NO_BOOKS_FOR_AUTHOR", "この著者の書籍は見つかりませんでした"))
			return
		}
		c.JSON(http.StatusOK, books)
	}
}

// TitleHandler は GET /title/:title のハンドラーです。
func TitleHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		books, err := store.FindByTitle(c.Request.Context(), c.Param("title"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if len(books) == 0 {
			apperr.Respond(c, apperr.NotFound("NO_BOOKS_FOR_TITLE", "この書名の書籍は見つかりませんでした"))
			return
		}
		c.JSON(http.StatusOK, books)
	}
}

// ReviewsHandler は GET /review/:isbn のハンドラーです。
func ReviewsHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		reviews, err := store.Reviews(c.Request.Context(), c.Param("isbn"))
		if err != nil {
			respondLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, reviews)
	}
}
