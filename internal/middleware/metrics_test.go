package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	router := gin.New()
	router.Use(m.Handler())
	router.GET("/isbn/:isbn", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/isbn/0001", "/isbn/0002", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/isbn/:isbn", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}
