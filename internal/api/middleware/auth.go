package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/application/services/auth"
	"github.com/userfetch/userfetch/internal/shared/errors"
)

// RequireAuth 鉴权中间件。
// 令牌取自Authorization头;EventSource无法携带请求头,
// 事件流路由允许以 ?token= 查询参数兜底。
func RequireAuth(service contracts.AuthService, allowQueryToken bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQueryToken {
			token = strings.TrimSpace(c.Query("token"))
		}

		if err := service.Verify(c.Request.Context(), token); err != nil {
			message := "未登录或登录已过期"
			if serviceErr, ok := err.(*errors.ServiceError); ok {
				message = serviceErr.Message
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": message})
			return
		}
		c.Next()
	}
}

// ClientKey 提取客户端标识,用于登录限流
// 优先级: X-Forwarded-For首段 → X-Real-IP → 连接地址
func ClientKey(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}
