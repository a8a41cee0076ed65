package handlers

import (
	"ResQLink/internal/controller"
	"ResQLink/internal/store"
	"ResQLink/pkg/i18n"
	"ResQLink/pkg/metrics"
	"ResQLink/pkg/middleware"
	"ResQLink/pkg/sse"
	"ResQLink/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// Options 路由依赖
type Options struct {
	APIPrefix     string
	MonitorPrefix string

	Controller *controller.Controller
	Store      store.RecordStore
	I18n       *i18n.I18nSupport
	Hub        *sse.Hub
	WSHub      *websocket.Hub
	Metrics    *metrics.Metrics
	Limiter    *middleware.RateLimiter
}

type Handlers struct {
	ctrl    *controller.Controller
	store   store.RecordStore
	i18n    *i18n.I18nSupport
	hub     *sse.Hub
	wsHub   *websocket.Hub
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter

	apiPrefix     string
	monitorPrefix string
}

func NewHandlers(opts Options) *Handlers {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	return &Handlers{
		ctrl:          opts.Controller,
		store:         opts.Store,
		i18n:          opts.I18n,
		hub:           opts.Hub,
		wsHub:         opts.WSHub,
		metrics:       opts.Metrics,
		limiter:       opts.Limiter,
		apiPrefix:     opts.APIPrefix,
		monitorPrefix: opts.MonitorPrefix,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.Use(metrics.Middleware(h.metrics))

	if h.monitorPrefix != "" {
		metrics.NewMonitorAPI(h.metrics).RegisterRoutes(engine.Group(h.monitorPrefix))
	}

	r := engine.Group(h.apiPrefix)
	r.Use(middleware.LanguageMiddleware(h.i18n))
	if h.limiter != nil {
		r.Use(h.limiter.Middleware())
	}

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerStatusRoutes(r)
	h.registerGatewayRoutes(r)
	h.registerRecordRoutes(r)

	if h.hub != nil {
		r.GET("/events", h.hub.Serve)
	}
	if h.wsHub != nil {
		websocket.NewHandler(h.wsHub).RegisterRoutes(r)
	}
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)

		system.GET("/rate-limiter/config", h.GetRateLimiterConfig)

		system.POST("/rate-limiter/config", h.UpdateRateLimiterConfig)
	}
}

func (h *Handlers) registerStatusRoutes(r *gin.RouterGroup) {
	r.GET("/status", h.handleSnapshot)

	r.PUT("/status/tab", h.handleSetTab)

	r.PUT("/status/online", h.handleSetOnline)

	r.GET("/alerts", h.handleAlerts)

	r.GET("/devices", h.handleDevices)
}

func (h *Handlers) registerGatewayRoutes(r *gin.RouterGroup) {
	gw := r.Group("gateway")
	{
		gw.POST("/bluetooth", h.handleEnableBluetooth)

		gw.DELETE("/bluetooth", h.handleDisconnectBluetooth)

		gw.POST("/location", h.handleEnableLocation)

		gw.POST("/location/watch", h.handleStartWatch)

		gw.DELETE("/location/watch", h.handleStopWatch)
	}
}

func (h *Handlers) registerRecordRoutes(r *gin.RouterGroup) {
	r.POST("/sos", h.handleSendSOS)

	r.POST("/messages", h.handleSendMessage)

	r.POST("/messages/location", h.handleShareLocation)

	records := r.Group("records")
	{
		records.GET("", h.handleListRecords)

		records.GET("/pending", h.handlePendingRecords)

		records.GET("/search", h.handleSearchRecords)

		records.GET("/suggest", h.handleSuggest)

		records.PUT("/:id/status", h.handleUpdateStatus)
	}
}
