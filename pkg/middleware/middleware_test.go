package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ResQLink/pkg/i18n"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedEngine(cfg RateLimiterConfig, obs MetricsObserver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(cfg, nil).WithObserver(obs).Middleware())
	r.GET("/api/records", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/events", func(c *gin.Context) { c.String(http.StatusOK, "stream") })
	return r
}

func do(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterDeniesOverLimit(t *testing.T) {
	obs := NewPrometheusObserver(prometheus.NewRegistry())
	r := newLimitedEngine(RateLimiterConfig{Rate: "2-M", AddHeaders: true, SkipPaths: []string{"/api/events"}}, obs)

	assert.Equal(t, http.StatusOK, do(r, "/api/records").Code)
	w := do(r, "/api/records")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do(r, "/api/records")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(r, "/api/events").Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(obs.allow.WithLabelValues("/api/records")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.deny.WithLabelValues("/api/records")))
}

func TestRateLimiterCIDRLists(t *testing.T) {
	r := newLimitedEngine(RateLimiterConfig{Rate: "1-M", WhitelistCIDRs: []string{"192.0.2.0/24"}}, nil)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, "/api/records").Code)
	}

	r = newLimitedEngine(RateLimiterConfig{Rate: "100-M", BlacklistCIDRs: []string{"192.0.2.10/32"}}, nil)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "/api/records").Code)
}

func TestLanguageMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, err := i18n.NewI18nSupport("en")
	require.NoError(t, err)

	r := gin.New()
	r.Use(LanguageMiddleware(s))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, Lang(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	r.ServeHTTP(w, req)
	assert.Equal(t, "zh", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?lang=en", nil))
	assert.Equal(t, "en", w.Body.String())
}
