package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/bookshelf/internal/auth"
	"github.com/yourusername/bookshelf/internal/catalog"
	"github.com/yourusername/bookshelf/internal/config"
	"github.com/yourusername/bookshelf/internal/upstream"
	"github.com/yourusername/bookshelf/internal/users"
)

type testServer struct {
	*httptest.Server
	books        *catalog.MemoryStore
	shuttingDown *atomic.Bool

	mu  sync.Mutex
	now time.Time
}

// setNow はトークンとセッションストアが共有する時計を進めます。
func (ts *testServer) setNow(now time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.now = now
}

func (ts *testServer) clock() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.now
}

// newTestServer は /async/* が自分自身を取得先とする構成でサーバーを起動します。
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	books, err := catalog.NewSeededStore()
	require.NoError(t, err)

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		GinMode:                gin.TestMode,
		SessionSecret:          config.DefaultSessionSecret,
		TokenSecret:            config.DefaultTokenSecret,
		TokenTTLMinutes:        60,
		SessionGraceMinutes:    1440,
		SessionBackend:         config.SessionBackendMemory,
		CORSAllowedOrigins:     "http://localhost:3000",
		UpstreamBaseURL:        srv.URL,
		UpstreamTimeoutSeconds: 2,
	}
	require.NoError(t, cfg.Validate())

	ts := &testServer{Server: srv, books: books, shuttingDown: &atomic.Bool{}, now: time.Now()}
	handler = buildRouter(cfg, zerolog.Nop(), dependencies{
		users:        users.NewMemoryStore(),
		sessions:     auth.NewMemorySessionStore().WithClock(ts.clock),
		clock:        ts.clock,
		books:        books,
		fetcher:      upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout()),
		registry:     prometheus.NewRegistry(),
		shuttingDown: ts.shuttingDown,
	})
	return ts
}

// newClient はクッキーを保持するクライアントを作成します。
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func call(t *testing.T, client *http.Client, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	}
	return resp.StatusCode, payload
}

func TestReviewLifecycle(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)
	creds := map[string]string{"username": "alice", "password": "pw1"}

	status, _ := call(t, client, http.MethodPost, srv.URL+"/register", creds)
	require.Equal(t, http.StatusCreated, status)

	status, payload := call(t, client, http.MethodPost, srv.URL+"/customer/login", creds)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, payload["token"])

	status, payload = call(t, client, http.MethodPut, srv.URL+"/customer/auth/review/0001?review=Nice", nil)
	require.Equal(t, http.StatusOK, status, payload)
	assert.Equal(t, map[string]any{"alice": "Nice"}, payload["reviews"])

	status, payload = call(t, client, http.MethodGet, srv.URL+"/review/0001", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"alice": "Nice"}, payload)

	status, payload = call(t, client, http.MethodDelete, srv.URL+"/customer/auth/review/0001", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{}, payload["reviews"])

	status, payload = call(t, client, http.MethodDelete, srv.URL+"/customer/auth/review/0001", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "REVIEW_NOT_FOUND", payload["code"])
}

func TestTokenExpiryBoundary(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)
	creds := map[string]string{"username": "alice", "password": "pw1"}

	status, _ := call(t, client, http.MethodPost, srv.URL+"/register", creds)
	require.Equal(t, http.StatusCreated, status)
	status, payload := call(t, client, http.MethodPost, srv.URL+"/customer/login", creds)
	require.Equal(t, http.StatusOK, status)

	token, _ := payload["token"].(string)
	claims, err := auth.NewTokenIssuer([]byte(config.DefaultTokenSecret), time.Hour).
		WithClock(srv.clock).
		Verify(token)
	require.NoError(t, err)
	exp := claims.ExpiresAt.Time

	srv.setNow(exp.Add(-time.Second))
	status, payload = call(t, client, http.MethodPut, srv.URL+"/customer/auth/review/0001?review=Nice", nil)
	require.Equal(t, http.StatusOK, status, payload)

	srv.setNow(exp.Add(time.Second))
	status, payload = call(t, client, http.MethodDelete, srv.URL+"/customer/auth/review/0001", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "INVALID_TOKEN", payload["code"])

	// 拒否された削除はレビューを変更しない
	reviews, err := srv.books.Reviews(t.Context(), "0001")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "Nice"}, reviews)
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)

	status, payload := call(t, client, http.MethodPut, srv.URL+"/customer/auth/review/0001?review=Nice", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "NOT_LOGGED_IN", payload["code"])

	status, _ = call(t, client, http.MethodDelete, srv.URL+"/customer/auth/review/0001", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	reviews, err := srv.books.Reviews(t.Context(), "0001")
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestReviewsAreScopedToUser(t *testing.T) {
	srv := newTestServer(t)
	alice, bob := newClient(t), newClient(t)

	for name, client := range map[string]*http.Client{"alice": alice, "bob": bob} {
		creds := map[string]string{"username": name, "password": "pw-" + name}
		status, _ := call(t, client, http.MethodPost, srv.URL+"/register", creds)
		require.Equal(t, http.StatusCreated, status)
		status, _ = call(t, client, http.MethodPost, srv.URL+"/customer/login", creds)
		require.Equal(t, http.StatusOK, status)
	}

	status, _ := call(t, alice, http.MethodPut, srv.URL+"/customer/auth/review/0003?review=Divine", nil)
	require.Equal(t, http.StatusOK, status)

	status, payload := call(t, bob, http.MethodDelete, srv.URL+"/customer/auth/review/0003", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "REVIEW_NOT_FOUND", payload["code"])

	status, payload = call(t, bob, http.MethodPut, srv.URL+"/customer/auth/review/0003?review=Long", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"alice": "Divine", "bob": "Long"}, payload["reviews"])
}

func TestAsyncRoutesUseLoopback(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)

	status, payload := call(t, client, http.MethodGet, srv.URL+"/async/books", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, payload, 10)

	status, payload = call(t, client, http.MethodGet, srv.URL+"/async/isbn/0002", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hans Christian Andersen", payload["author"])

	status, payload = call(t, client, http.MethodGet, srv.URL+"/async/isbn/9999", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UPSTREAM_ERROR", payload["code"])
}

func TestOperationalEndpoints(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)

	status, payload := call(t, client, http.MethodGet, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", payload["status"])

	status, _ = call(t, client, http.MethodGet, srv.URL+"/ready", nil)
	assert.Equal(t, http.StatusOK, status)
	srv.shuttingDown.Store(true)
	status, payload = call(t, client, http.MethodGet, srv.URL+"/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "shutting_down", payload["status"])

	// 失敗したログインと拒否をメトリクスに記録させる
	call(t, client, http.MethodPost, srv.URL+"/customer/login", map[string]string{"username": "ghost", "password": "x"})
	call(t, client, http.MethodPut, srv.URL+"/customer/auth/review/0001?review=x", nil)

	resp, err := client.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",route="/health",status="200"} 1`), body)
	assert.Contains(t, body, `auth_logins_total{result="failure"} 1`)
	assert.Contains(t, body, "auth_guard_rejections_total")
}
