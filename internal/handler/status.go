package handlers

import (
	"ResQLink/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) handleSnapshot(c *gin.Context) {
	response.Success(c, "success", h.ctrl.Snapshot())
}

func (h *Handlers) handleSetTab(c *gin.Context) {
	var req struct {
		Tab string `json:"tab" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	tab, err := h.ctrl.SetTab(req.Tab)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", gin.H{"tab": tab})
}

func (h *Handlers) handleSetOnline(c *gin.Context) {
	var req struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	h.ctrl.SetOnline(*req.Online)
	response.Success(c, "success", h.ctrl.Snapshot())
}

func (h *Handlers) handleAlerts(c *gin.Context) {
	response.Success(c, "success", gin.H{
		"alerts": h.ctrl.Alerts(),
		"active": h.ctrl.ActiveAlertCount(),
	})
}

func (h *Handlers) handleDevices(c *gin.Context) {
	response.Success(c, "success", gin.H{"devices": h.ctrl.NearbyDevices()})
}

// gateway

func (h *Handlers) handleEnableBluetooth(c *gin.Context) {
	st, err := h.ctrl.EnableBluetooth(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", st)
}

func (h *Handlers) handleDisconnectBluetooth(c *gin.Context) {
	response.Success(c, "success", h.ctrl.DisconnectBluetooth())
}

func (h *Handlers) handleEnableLocation(c *gin.Context) {
	st, err := h.ctrl.EnableLocation(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", st)
}

func (h *Handlers) handleStartWatch(c *gin.Context) {
	st, err := h.ctrl.StartLiveLocation()
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", st)
}

func (h *Handlers) handleStopWatch(c *gin.Context) {
	response.Success(c, "success", h.ctrl.StopLiveLocation())
}
