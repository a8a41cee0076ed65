package handlers

import (
	"net/http"
	"strconv"

	"ResQLink/internal/controller"
	"ResQLink/internal/models"
	"ResQLink/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

const (
	defaultSearchSize  = 20
	defaultSuggestSize = 5
)

type sosRequest struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type statusRequest struct {
	Status   string `json:"status" binding:"required"`
	Expected string `json:"expected"`
}

func (h *Handlers) handleSendSOS(c *gin.Context) {
	var req sosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	var sev models.Severity
	if req.Severity != "" {
		s, ok := models.ParseSeverity(req.Severity)
		if !ok {
			response.Fail(c, "invalid severity", gin.H{"severity": req.Severity})
			return
		}
		sev = s
	}
	rec, err := h.ctrl.SendSOS(c.Request.Context(), controller.SOSRequest{Message: req.Message, Severity: sev})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	h.success(c, "sos.sent", "SOS queued for mesh relay", rec)
}

func (h *Handlers) handleSendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	rec, err := h.ctrl.SendMessage(c.Request.Context(), req.Text)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	h.success(c, "message.sent", "Message queued for mesh relay", rec)
}

func (h *Handlers) handleShareLocation(c *gin.Context) {
	rec, err := h.ctrl.ShareLocation(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	h.success(c, "message.sent", "Message queued for mesh relay", rec)
}

func (h *Handlers) handleListRecords(c *gin.Context) {
	records, err := h.ctrl.Records(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", gin.H{"records": records, "total": len(records)})
}

func (h *Handlers) handlePendingRecords(c *gin.Context) {
	records, err := h.ctrl.PendingRecords(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", gin.H{"records": records, "total": len(records)})
}

func (h *Handlers) handleSearchRecords(c *gin.Context) {
	size := cast.ToInt(c.DefaultQuery("size", strconv.Itoa(defaultSearchSize)))
	if size <= 0 {
		size = defaultSearchSize
	}
	q := controller.RecordQuery{Text: c.Query("q"), Size: size}
	if v := c.Query("severity"); v != "" {
		sev, ok := models.ParseSeverity(v)
		if !ok {
			response.Fail(c, "invalid severity", gin.H{"severity": v})
			return
		}
		q.Severity = sev
	}
	res, err := h.ctrl.SearchRecords(c.Request.Context(), q)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", res)
}

func (h *Handlers) handleSuggest(c *gin.Context) {
	size := cast.ToInt(c.DefaultQuery("size", strconv.Itoa(defaultSuggestSize)))
	out, err := h.ctrl.SuggestMessages(c.Request.Context(), c.Query("prefix"), size)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", gin.H{"suggestions": out})
}

func (h *Handlers) handleUpdateStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.AbortWithStatus(c, http.StatusBadRequest, -1, "invalid record id", nil)
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", gin.H{"error": err.Error()})
		return
	}
	if err := h.ctrl.MarkStatus(c.Request.Context(), id, req.Status, req.Expected); err != nil {
		h.abortWithError(c, err)
		return
	}
	response.Success(c, "success", gin.H{"id": id, "status": req.Status})
}
