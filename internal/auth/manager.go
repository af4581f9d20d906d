// Package auth は利用者登録、ログイン、保護ルートの認証ガードを提供します。
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourusername/bookshelf/internal/apperr"
	"github.com/yourusername/bookshelf/internal/middleware"
	"github.com/yourusername/bookshelf/internal/users"
)

const (
	SessionCookieName = "bookshelf_session"
	sessionKeyID      = "sid"
)

// ガードが返すエラー。401 と 403 を区別して返します。
var (
	ErrNotLoggedIn        = apperr.Authentication("NOT_LOGGED_IN", "ログインが必要です")
	ErrMissingAccessToken = apperr.Authentication("MISSING_ACCESS_TOKEN", "アクセストークンがありません。再度ログインしてください")
	ErrTokenRejected      = apperr.Authorization("INVALID_TOKEN", "アクセストークンが無効か、有効期限が切れています")
	ErrGuardFailure       = apperr.New(apperr.KindInternal, "AUTH_ERROR", "認証処理でエラーが発生しました")
)

// NewCookieStore はセッションIDだけを運ぶ署名付きクッキーストアを作成します。
// セッションの中身はサーバー側の SessionStore に保存します。
func NewCookieStore(secret []byte, maxAgeSeconds int, secure bool) sessions.Store {
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// DefaultSessionGrace はトークン失効後もセッション記録を保持する既定の期間です。
// この間に届いたリクエストは 401 ではなく 403 INVALID_TOKEN で拒否されます。
const DefaultSessionGrace = 24 * time.Hour

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	users        users.Store
	sessions     SessionStore
	tokens       *TokenIssuer
	metrics      *Metrics
	sessionGrace time.Duration
}

// NewManager は認証マネージャーを作成します。metrics は nil でも構いません。
// sessionGrace が 0 以下の場合は DefaultSessionGrace を使います。
func NewManager(userStore users.Store, sessionStore SessionStore, tokens *TokenIssuer, metrics *Metrics, sessionGrace time.Duration) *Manager {
	if sessionGrace <= 0 {
		sessionGrace = DefaultSessionGrace
	}
	return &Manager{
		users:        userStore,
		sessions:     sessionStore,
		tokens:       tokens,
		metrics:      metrics,
		sessionGrace: sessionGrace,
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func bindCredentials(c *gin.Context) (*credentialsRequest, error) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, "INVALID_INPUT", "username と password を JSON で送ってください")
	}
	return &req, nil
}

// Register は /register のハンドラーです。トークンは発行しません。
func (m *Manager) Register(c *gin.Context) {
	req, err := bindCredentials(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	if err := m.users.Register(c.Request.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, users.ErrDuplicateUser):
			apperr.Respond(c, apperr.Wrap(err, apperr.KindConflict, "USER_EXISTS", "このユーザー名は既に登録されています"))
		case errors.Is(err, users.ErrMissingFields):
			apperr.Respond(c, apperr.Wrap(err, apperr.KindValidation, "INVALID_INPUT", "username と password を JSON で送ってください"))
		default:
			apperr.Respond(c, err)
		}
		return
	}

	zerolog.Ctx(c.Request.Context()).Info().Str("username", req.Username).Msg("user registered")
	c.JSON(http.StatusCreated, gin.H{
		"message": "ユーザー登録が完了しました。ログインしてください",
	})
}

// Login は /customer/login のハンドラーです。
// 呼び出し元のセッションIDに対してセッション記録を作成（または上書き）し、トークンを返します。
func (m *Manager) Login(c *gin.Context) {
	req, err := bindCredentials(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	ctx, span := middleware.StartSpan(c.Request.Context(), "auth.login")
	defer span.End()

	ok, err := m.users.Verify(ctx, req.Username, req.Password)
	if err != nil {
		span.RecordError(err)
		apperr.Respond(c, err)
		return
	}
	span.SetAttributes(attribute.Bool("auth.success", ok))
	if !ok {
		span.AddEvent("authentication.failed")
		m.metrics.login("failure")
		apperr.Respond(c, apperr.Authentication("INVALID_CREDENTIALS", "ユーザー名またはパスワードが正しくありません"))
		return
	}

	token, expiresAt, err := m.tokens.Issue(req.Username)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.KindInternal, "TOKEN_GENERATION_FAILED", "アクセストークンの生成に失敗しました"))
		return
	}

	session := sessions.Default(c)
	sid, _ := session.Get(sessionKeyID).(string)
	if sid == "" {
		sid = NewSessionID()
	}

	if err := m.sessions.Save(ctx, &Session{
		ID:          sid,
		AccessToken: token,
		Username:    req.Username,
		ExpiresAt:   expiresAt.Add(m.sessionGrace),
	}); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.KindInternal, "SESSION_SAVE_FAILED", "セッションの保存に失敗しました"))
		return
	}

	session.Set(sessionKeyID, sid)
	if err := session.Save(); err != nil {
		apperr.Respond(c, apperr.Wrap(err, apperr.KindInternal, "SESSION_SAVE_FAILED", "セッションの保存に失敗しました"))
		return
	}

	m.metrics.login("success")
	zerolog.Ctx(ctx).Info().Str("username", req.Username).Time("expires_at", expiresAt).Msg("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"message": "ログインに成功しました",
		"token":   token,
	})
}

// RequireLogin は保護ルートの認証ガードです。
//  1. セッション記録がない、またはトークンを持たない場合は 401
//  2. トークンの署名・有効期限の検証に失敗した場合は 403
//  3. 成功時はトークンに埋め込まれたユーザー名を後続のハンドラーへ渡す
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := middleware.StartSpan(c.Request.Context(), "auth.guard")
		username, reason, err := m.authenticate(c)
		if err != nil {
			span.SetAttributes(attribute.String("auth.reject_reason", reason))
			span.End()
			m.metrics.reject(reason)
			apperr.Respond(c, err)
			return
		}
		span.End()

		c.Set(ContextUserKey, username)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), username))
		c.Next()
	}
}

// authenticate は検証処理中の panic も 500 として扱います。
func (m *Manager) authenticate(c *gin.Context) (username, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(c.Request.Context()).Error().Interface("panic", r).Msg("auth guard panicked")
			username, reason = "", "internal"
			err = ErrGuardFailure
		}
	}()

	sid, _ := sessions.Default(c).Get(sessionKeyID).(string)
	if sid == "" {
		return "", "no_session", ErrNotLoggedIn
	}

	record, err := m.sessions.Get(c.Request.Context(), sid)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("session lookup failed")
		return "", "internal", fmt.Errorf("lookup session: %w", ErrGuardFailure)
	}
	if record == nil {
		return "", "no_session", ErrNotLoggedIn
	}
	if record.AccessToken == "" {
		return "", "missing_token", ErrMissingAccessToken
	}

	claims, err := m.tokens.Verify(record.AccessToken)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Debug().Err(err).Str("session", sid).Msg("token rejected")
		return "", "invalid_token", ErrTokenRejected
	}

	return claims.Username, "", nil
}
