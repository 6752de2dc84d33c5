package middleware

import (
	"strconv"

	"chatsphere_server/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// TlsHandler 把 HTTP 请求重定向到 HTTPS，并附加 HSTS 等安全响应头
// 部署在反向代理之后时按 X-Forwarded-Proto 判断原始协议
func TlsHandler(conf config.MainConfig) gin.HandlerFunc {
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect:          true,
		SSLHost:              conf.Host + ":" + strconv.Itoa(conf.Port),
		SSLProxyHeaders:      map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:           31536000,
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		IsDevelopment:        conf.Mode == "dev",
	})

	return func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			// 重定向已经写入响应，终止后续处理
			zap.L().Debug("TLS 重定向", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.Abort()
			return
		}
		c.Next()
	}
}
