package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/shared/errors"
	"github.com/userfetch/userfetch/pkg/logger"
)

// OK 200响应
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error 将业务错误映射为HTTP响应,载荷统一为 {"detail": ..., "code": ...}
func Error(c *gin.Context, err error) {
	serviceErr, ok := err.(*errors.ServiceError)
	if !ok {
		logger.Error("unhandled error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail": "服务器内部错误",
			"code":   string(errors.ErrorCodeInternalError),
		})
		return
	}

	body := gin.H{
		"detail": serviceErr.Message,
		"code":   string(serviceErr.Code),
	}
	for key, value := range serviceErr.Details {
		body[key] = value
	}
	c.JSON(StatusOf(serviceErr.Code), body)
}

// StatusOf 业务错误码到HTTP状态码的映射
func StatusOf(code errors.ErrorCode) int {
	switch code {
	case errors.ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case errors.ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrorCodeBlocked, errors.ErrorCodeRateLimit:
		return http.StatusTooManyRequests
	case errors.ErrorCodeNotFound:
		return http.StatusNotFound
	case errors.ErrorCodeConflict, errors.ErrorCodeAlreadyTerminal:
		return http.StatusConflict
	case errors.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrorCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
