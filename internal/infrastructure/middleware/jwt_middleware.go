package middleware

import (
	"net/http"
	"strings"

	"chatsphere_server/internal/service/auth"
	"chatsphere_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// JWTAuth JWT 认证中间件
// 通过认证服务校验 Access Token（含吊销检查）并将用户信息存入上下文
func JWTAuth(authn auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从 Header 获取 Token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "请先登录",
			})
			return
		}

		// 2. 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "Token 格式错误，请使用 Bearer Token",
			})
			return
		}

		// 3. 验证 Token
		id, err := authn.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "Token 已过期或无效，请重新登录",
			})
			return
		}

		// 4. 将用户信息存入上下文，供后续 Handler 使用
		c.Set("user_id", id.UserID)
		c.Set("username", id.Username)
		c.Next()
	}
}
