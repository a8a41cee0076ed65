package handlers

import (
	"net/http"

	"ResQLink/internal/gateway"
	apperrors "ResQLink/pkg/errors"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/middleware"
	"ResQLink/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByCode = map[int]int{
	apperrors.CodeRecordNotFound:        http.StatusNotFound,
	apperrors.CodeStoreNotInitialized:   http.StatusServiceUnavailable,
	apperrors.CodePermissionDenied:      http.StatusForbidden,
	apperrors.CodeTimeout:               http.StatusGatewayTimeout,
	apperrors.CodeUnavailable:           http.StatusServiceUnavailable,
	apperrors.CodeUnsupportedCapability: http.StatusNotImplemented,
	apperrors.CodeBusy:                  http.StatusConflict,
	apperrors.CodePreconditionFailed:    http.StatusConflict,
	apperrors.CodeInvalidArgument:       http.StatusBadRequest,
}

// 没有显式 reason 的错误按错误码取文案
var keyByCode = map[int]string{
	apperrors.CodeRecordNotFound:      "record.not_found",
	apperrors.CodeStoreNotInitialized: "store.not_initialized",
}

// HTTPStatus 错误码对应的 HTTP 状态
func HTTPStatus(err error) int {
	if s, ok := statusByCode[apperrors.GetCode(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// abortWithError 写出错误响应，msg 按请求语言本地化，data 里带错误码名称
func (h *Handlers) abortWithError(c *gin.Context, err error) {
	code := apperrors.GetCode(err)
	status := HTTPStatus(err)

	key := gateway.ReasonKey(err)
	if key == "" {
		key = keyByCode[code]
	}
	msg := apperrors.GetMessage(err)
	if key != "" {
		msg = h.i18n.T(middleware.Lang(c), key, msg)
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", apperrors.CodeName(code)),
			zap.Error(err),
			zap.String("stack", apperrors.GetStack(err)))
	}
	response.AbortWithStatus(c, status, -1, msg, gin.H{"error": apperrors.CodeName(code)})
}

func (h *Handlers) success(c *gin.Context, key, fallback string, data any) {
	response.Success(c, h.i18n.T(middleware.Lang(c), key, fallback), data)
}
