package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/api/utils"
	"github.com/userfetch/userfetch/internal/shared/errors"
	"github.com/userfetch/userfetch/pkg/logger"
)

// ErrorHandler 统一错误处理中间件。
// handler通过c.Error挂出业务错误,此处映射为HTTP响应。
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		utils.Error(c, c.Errors.Last().Err)
	}
}

// Recover 捕获panic并转换为500响应
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", "path", c.FullPath(), "panic", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"detail": "服务器内部错误",
					"code":   string(errors.ErrorCodeInternalError),
				})
			}
		}()
		c.Next()
	}
}
