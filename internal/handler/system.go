package handlers

import (
	"net/http"

	"ResQLink/pkg/middleware"
	"ResQLink/pkg/response"

	"github.com/gin-gonic/gin"
)

// GetRateLimiterConfig 当前限流配置
func (h *Handlers) GetRateLimiterConfig(c *gin.Context) {
	if h.limiter == nil {
		response.AbortWithStatus(c, http.StatusNotImplemented, -1, "rate limiter disabled", nil)
		return
	}
	response.Success(c, "success", h.limiter.Config())
}

// UpdateRateLimiterConfig 更新限流配置
func (h *Handlers) UpdateRateLimiterConfig(c *gin.Context) {
	if h.limiter == nil {
		response.AbortWithStatus(c, http.StatusNotImplemented, -1, "rate limiter disabled", nil)
		return
	}
	var config middleware.RateLimiterConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}

	h.limiter.UpdateConfig(config)
	response.Success(c, "rate limiter config updated", nil)
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	if h.store == nil || !h.store.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database not initialized"})
		return
	}
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	stats := gin.H{"status": "healthy", "search_docs": h.ctrl.IndexedCount()}
	if h.hub != nil {
		stats["sse_clients"] = h.hub.Count()
	}
	if h.wsHub != nil {
		stats["ws_clients"] = h.wsHub.GetConnectionCount()
	}
	c.JSON(http.StatusOK, stats)
}
