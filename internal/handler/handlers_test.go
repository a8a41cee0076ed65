package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"ResQLink/internal/controller"
	"ResQLink/internal/gateway"
	"ResQLink/internal/listeners"
	"ResQLink/internal/store"
	apperrors "ResQLink/pkg/errors"
	"ResQLink/pkg/i18n"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/metrics"
	"ResQLink/pkg/middleware"
	"ResQLink/pkg/search"
	"ResQLink/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newTestEngine(t *testing.T, bluetooth, location string, open bool) (*gin.Engine, store.RecordStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.New(store.Options{Driver: util.DriverSQLite, DSN: filepath.Join(t.TempDir(), "api.db")})
	if open {
		require.NoError(t, s.Open(context.Background()))
	}
	t.Cleanup(func() { s.Close() })

	engine, err := search.New(search.Config{}, search.BuildIndexMapping(""))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	tr, err := i18n.NewI18nSupport("en")
	require.NoError(t, err)

	sig := util.NewSignals()
	listeners.InitRecordListeners(sig, engine)
	m := metrics.NewMetrics()
	bt, loc := gateway.NewSimulatedPlatform(bluetooth, location)
	ctrl := controller.New(controller.Options{
		Store:     s,
		Bluetooth: gateway.NewBluetoothGateway(bt, sig, m),
		Location:  gateway.NewLocationGateway(loc, sig, m),
		Search:    engine,
		Signals:   sig,
		Metrics:   m,
		Rand:      rand.New(rand.NewSource(1)),
	})
	t.Cleanup(ctrl.Stop)

	r := gin.New()
	NewHandlers(Options{
		APIPrefix:     "/api",
		MonitorPrefix: "/monitor",
		Controller:    ctrl,
		Store:         s,
		I18n:          tr,
		Metrics:       m,
		Limiter: middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:      "1000-M",
			SkipPaths: []string{"/api/events"},
		}, nil),
	}).Register(r)
	return r, s
}

func call(t *testing.T, r http.Handler, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestEngine(t, "granted", "granted", true)
	w, _ := call(t, r, http.MethodGet, "/api/system/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	r, _ = newTestEngine(t, "granted", "granted", false)
	w, _ = call(t, r, http.MethodGet, "/api/system/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSOSFlow(t *testing.T) {
	r, _ := newTestEngine(t, "granted", "granted", true)

	w, env := call(t, r, http.MethodPost, "/api/sos", gin.H{"message": "trapped"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Enable Bluetooth before sending an SOS", env.Msg)

	w, _ = call(t, r, http.MethodPost, "/api/gateway/bluetooth", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = call(t, r, http.MethodPost, "/api/sos", gin.H{"message": "   "}, "Accept-Language", "zh-CN")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "消息内容不能为空", env.Msg)

	w, env = call(t, r, http.MethodPost, "/api/sos", gin.H{"message": "Trapped on roof", "severity": "high"})
	require.Equal(t, http.StatusOK, w.Code)
	var rec struct {
		ID       uint64         `json:"id"`
		Status   string         `json:"status"`
		Severity string         `json:"severity"`
		Location map[string]any `json:"location"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, uint64(1), rec.ID)
	assert.Equal(t, "pending", rec.Status)
	assert.Equal(t, "high", rec.Severity)
	assert.NotNil(t, rec.Location)

	w, _ = call(t, r, http.MethodPost, "/api/messages", gin.H{"text": "all good here"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = call(t, r, http.MethodGet, "/api/records?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":2`)

	w, _ = call(t, r, http.MethodPut, "/api/records/1/status", gin.H{"status": "sent"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, r, http.MethodPut, "/api/records/1/status", gin.H{"status": "synced", "expected": "pending"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = call(t, r, http.MethodGet, "/api/records?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":1`)
}

func TestUpdateStatusErrors(t *testing.T) {
	r, _ := newTestEngine(t, "granted", "granted", true)

	w, env := call(t, r, http.MethodPut, "/api/records/99/status", gin.H{"status": "sent"}, "Accept-Language", "zh")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "记录不存在", env.Msg)
	assert.Contains(t, string(env.Data), "RecordNotFound")

	w, _ = call(t, r, http.MethodPut, "/api/records/abc/status", gin.H{"status": "sent"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, r, http.MethodPut, "/api/records/1/status", gin.H{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStoreNotInitialized(t *testing.T) {
	r, _ := newTestEngine(t, "granted", "granted", false)
	w, env := call(t, r, http.MethodGet, "/api/records", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Database not initialized", env.Msg)
}

func TestLocationDenied(t *testing.T) {
	r, _ := newTestEngine(t, "granted", "denied", true)

	w, env := call(t, r, http.MethodPost, "/api/gateway/location?lang=zh", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "定位权限被拒绝", env.Msg)

	w, env = call(t, r, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap controller.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "Location permission denied", snap.Location.Error)
	assert.Nil(t, snap.Location.Coordinates)
}

func TestLocationUnavailableIsNotLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(nil) })

	r, _ := newTestEngine(t, "granted", "unavailable", true)

	w, env := call(t, r, http.MethodPost, "/api/gateway/location", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Location information unavailable", env.Msg)
	assert.Zero(t, logs.Len())
}

func TestStatusRoutes(t *testing.T) {
	r, _ := newTestEngine(t, "granted", "granted", true)

	w, _ := call(t, r, http.MethodPut, "/api/status/tab", gin.H{"tab": "map"})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, r, http.MethodPut, "/api/status/tab", gin.H{"tab": "settings"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, r, http.MethodPut, "/api/status/online", gin.H{"online": false})
	require.Equal(t, http.StatusOK, w.Code)

	_, env := call(t, r, http.MethodGet, "/api/status", nil)
	var snap controller.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, controller.Tab("map"), snap.Tab)
	assert.False(t, snap.Online)

	_, env = call(t, r, http.MethodGet, "/api/devices", nil)
	assert.JSONEq(t, `{"devices":[]}`, string(env.Data))

	_, env = call(t, r, http.MethodGet, "/api/alerts", nil)
	assert.Contains(t, string(env.Data), `"active"`)
}

func TestSearchAndMonitor(t *testing.T) {
	r, _ := newTestEngine(t, "granted", "granted", true)

	call(t, r, http.MethodPost, "/api/messages", gin.H{"text": "water rising near the bridge"})
	call(t, r, http.MethodPost, "/api/messages", gin.H{"text": "road blocked"})

	require.Eventually(t, func() bool {
		w, env := call(t, r, http.MethodGet, "/api/records/search?q=water", nil)
		return w.Code == http.StatusOK && bytes.Contains(env.Data, []byte(`"total":1`))
	}, 2*time.Second, 20*time.Millisecond)

	w, env := call(t, r, http.MethodGet, "/api/records/search?q=water&severity=low", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res controller.RecordSearch
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Hits, 1)
	assert.Equal(t, []search.FacetTerm{{Term: "low", Count: 1}}, res.Facets["severity"])

	w, _ = call(t, r, http.MethodGet, "/api/records/search?q=water&severity=extreme", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = call(t, r, http.MethodGet, "/api/records/search?q=", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = call(t, r, http.MethodGet, "/api/records/suggest?prefix=bri", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"suggestions":["water rising near the bridge"]}`, string(env.Data))

	w, _ = call(t, r, http.MethodGet, "/api/system/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"search_docs":2`)

	w, env = call(t, r, http.MethodGet, "/api/records/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":2`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/monitor/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sos_records_total")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[int]int{
		apperrors.CodeRecordNotFound:         http.StatusNotFound,
		apperrors.CodeStoreNotInitialized:    http.StatusServiceUnavailable,
		apperrors.CodePermissionDenied:       http.StatusForbidden,
		apperrors.CodeTimeout:                http.StatusGatewayTimeout,
		apperrors.CodeUnsupportedCapability:  http.StatusNotImplemented,
		apperrors.CodeBusy:                   http.StatusConflict,
		apperrors.CodePreconditionFailed:     http.StatusConflict,
		apperrors.CodeInvalidArgument:        http.StatusBadRequest,
		apperrors.CodeUnderlyingStoreFailure: http.StatusInternalServerError,
		apperrors.CodeUnavailable:            http.StatusServiceUnavailable,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(apperrors.WithCode(code, "x")), apperrors.CodeName(code))
	}
}
