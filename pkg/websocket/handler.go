package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub *Hub
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes 注册 /ws 与 /ws/stats
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.HandleWebSocket)
	r.GET("/ws/stats", h.GetStats)
}

// HandleWebSocket ?groups=record,gateway 指定初始订阅
func (h *Handler) HandleWebSocket(c *gin.Context) {
	var groups []string
	if q := c.Query("groups"); q != "" {
		groups = strings.Split(q, ",")
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, groups...); err != nil {
		// Upgrade 失败时已写回错误响应
		h.hub.log.Warnf("WebSocket升级失败: %v", err)
	}
}

// GetStats 获取WebSocket统计信息
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total_connections":  h.hub.GetConnectionCount(),
		"max_connections":    h.hub.config.MaxConnections,
		"heartbeat_interval": h.hub.config.HeartbeatInterval.String(),
		"connection_timeout": h.hub.config.ConnectionTimeout.String(),
		"groups": gin.H{
			"record":  h.hub.GetGroupConnections("record"),
			"gateway": h.hub.GetGroupConnections("gateway"),
			"network": h.hub.GetGroupConnections("network"),
		},
	})
}
