package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body 统一响应结构，code 为 0 表示成功
type Body struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Success 200 + code 0
func Success(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: msg, Data: data})
}

// Fail 400 + code -1
func Fail(c *gin.Context, msg string, data any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Code: -1, Msg: msg, Data: data})
}

// AbortWithStatus 指定 HTTP 状态码与业务码
func AbortWithStatus(c *gin.Context, status, code int, msg string, data any) {
	c.AbortWithStatusJSON(status, Body{Code: code, Msg: msg, Data: data})
}
