package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitorAPI 监控API处理器
type MonitorAPI struct {
	metrics *Metrics
	started time.Time
}

// NewMonitorAPI 创建监控API处理器
func NewMonitorAPI(m *Metrics) *MonitorAPI {
	return &MonitorAPI{metrics: m, started: time.Now()}
}

// RegisterRoutes 注册监控API路由
func (api *MonitorAPI) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/metrics", gin.WrapH(api.metrics.Handler()))
	r.GET("/overview", api.GetOverview)
}

// GetOverview 获取系统概览
func (api *MonitorAPI) GetOverview(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"uptime_seconds": int64(time.Since(api.started).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
			"heap_alloc":     mem.HeapAlloc,
			"counters":       api.metrics.Snapshot(),
		},
	})
}
