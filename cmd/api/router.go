package main

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yourusername/bookshelf/internal/auth"
	"github.com/yourusername/bookshelf/internal/catalog"
	"github.com/yourusername/bookshelf/internal/config"
	"github.com/yourusername/bookshelf/internal/middleware"
	"github.com/yourusername/bookshelf/internal/review"
	"github.com/yourusername/bookshelf/internal/upstream"
	"github.com/yourusername/bookshelf/internal/users"
)

const serviceName = "bookshelf-api"

// dependencies はルーターが利用するストアと外部接続です。
type dependencies struct {
	users        users.Store
	sessions     auth.SessionStore
	books        catalog.Store
	fetcher      upstream.Fetcher
	registry     *prometheus.Registry
	shuttingDown *atomic.Bool
	// clock はトークンの発行と検証に使う時計です。nil の場合は time.Now を使います。
	clock func() time.Time
}

// buildRouter はミドルウェアとすべてのルートを配線したルーターを作成します。
func buildRouter(cfg *config.Config, logger zerolog.Logger, deps dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Tracing(serviceName))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.NewHTTPMetrics(deps.registry).Handler())

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.ExposeHeaders = []string{middleware.TraceIDHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/health", handleHealth)
	router.GET("/ready", handleReady(deps.shuttingDown))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{})))

	tokens := auth.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL())
	if deps.clock != nil {
		tokens.WithClock(deps.clock)
	}
	authManager := auth.NewManager(deps.users, deps.sessions, tokens, auth.NewMetrics(deps.registry), cfg.SessionGrace())

	router.POST("/register", authManager.Register)
	catalog.RegisterRoutes(router, deps.books)
	upstream.RegisterRoutes(router, deps.fetcher)

	// セッションクッキーは /customer 配下でのみ扱い、トークン失効後も猶予期間だけ保持する
	cookieStore := auth.NewCookieStore(
		[]byte(cfg.SessionSecret),
		int((tokens.TTL() + cfg.SessionGrace()).Seconds()),
		cfg.GinMode == gin.ReleaseMode,
	)
	customer := router.Group("/customer", sessions.Sessions(auth.SessionCookieName, cookieStore))
	{
		customer.POST("/login", authManager.Login)

		protected := customer.Group("/auth", authManager.RequireLogin())
		review.RegisterRoutes(protected, review.NewLedger(deps.books))
	}

	return router
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
	})
}

// handleReady はシャットダウン開始後に 503 を返すレディネスチェックです。
func handleReady(shuttingDown *atomic.Bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if shuttingDown != nil && shuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
